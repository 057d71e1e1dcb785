package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// AtomicJsonFile is a simple API to atomically and durably read and write a json file.
//
// The atomic write is done by writing to a file named "<filename>.new",
// syncing it, renaming it to "<filename>" and then syncing the directory.
//
// Assuming all writers use the same method to write the file, this method ensures
// that readers will always see a "<filename>" that contains valid complete json
// since empty or partially written files, due to in progress or crashed writes, will
// never affect the original file. Once Write returns, the new contents survive a crash.
//
// However, because this uses the same temp file name for all writers, this is
// NOT safe for concurrent writes. (One writer may rename another's partially written file)
//
type AtomicJsonFile interface {
	// Read the JSON-encoded data in the wrapped file and
	// stores the result in the value pointed to by v.
	//
	// A missing file returns an error for which os.IsNotExist() is true.
	Read(v interface{}) error

	// Write the JSON encoding of v to the wrapped file.
	Write(v interface{}) error
}

type atomicJsonFile struct {
	filename    string
	filenameTmp string
}

// Create an AtomicJsonFile for the given file.
func NewAtomicJsonFile(filename string) AtomicJsonFile {
	return &atomicJsonFile{filename, filename + ".new"}
}

func (ajf *atomicJsonFile) Read(v interface{}) error {
	data, err := os.ReadFile(ajf.filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (ajf *atomicJsonFile) Write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = WriteFileSync(ajf.filenameTmp, data)
	if err != nil {
		return err
	}
	err = os.Rename(ajf.filenameTmp, ajf.filename)
	if err != nil {
		return err
	}
	return SyncDir(filepath.Dir(ajf.filename))
}

// WriteFileSync writes data to the named file, creating or truncating it,
// and syncs it to stable storage before returning.
func WriteFileSync(filename string, data []byte) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// SyncDir syncs the given directory so that renames and file creations
// in it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}
