package log

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-errors/errors"
	"github.com/google/uuid"

	. "github.com/divtxt/raftcore"
	"github.com/divtxt/raftcore/fileutil"
)

const (
	fileLogDataFile = "raftlog.dat"
	fileLogMetaFile = "raftlog.meta.json"

	recordHeaderSize = 8 // length uint32 + crc uint32
	payloadFixedSize = 9 // term uint64 + entry type uint8
)

var fileLogMagic = []byte("RAFTLOG1")

// ErrCorruptLog is returned when a FileLog finds data it did not write.
var ErrCorruptLog = errors.Errorf("log store is corrupt")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type fileLogMeta struct {
	StoreId uuid.UUID `json:"storeId"`
	Length  LogIndex  `json:"length"`
}

// FileLog is a durable raft Log stored in a directory.
//
// Entries are appended to a data file as length-prefixed records with a CRC.
// A separate meta file holds the logical length of the log: only entries up to
// that length are part of the log, so a truncation is just a durable update of
// the length and a crash in the middle of a write can never expose a partial
// record. Both files carry a store id (a UUID) that must match, so that a data
// file from another store is detected as corruption instead of being used.
//
// Every mutating call has synced its changes before it returns.
//
// Safe for concurrent use.
type FileLog struct {
	mutex      sync.RWMutex
	dir        string
	maxEntries uint64

	meta     fileLogMeta
	metaFile fileutil.AtomicJsonFile
	data     *os.File

	// offsets[i] is the file offset of the record for index i+1,
	// and offsets[len(terms)] is the offset where the next record goes.
	offsets []int64
	terms   []TermNo
}

// OpenFileLog opens the FileLog in the given directory, creating an empty
// one if there is none.
//
// The records up to the stored length are verified and any bytes after them
// are discarded.
// Returns an error that wraps ErrCorruptLog if the store fails verification.
func OpenFileLog(dir string, maxEntries uint64) (*FileLog, error) {
	if maxEntries <= 0 {
		return nil, errors.Errorf("maxEntries must be greater than zero")
	}
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	fl := &FileLog{
		dir:        dir,
		maxEntries: maxEntries,
		metaFile:   fileutil.NewAtomicJsonFile(filepath.Join(dir, fileLogMetaFile)),
	}

	err = fl.metaFile.Read(&fl.meta)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, corruptf("meta file: %v", err)
		}
		err = fl.create()
	} else {
		err = fl.load()
	}
	if err != nil {
		if fl.data != nil {
			fl.data.Close()
		}
		return nil, err
	}
	return fl, nil
}

func corruptf(format string, a ...interface{}) error {
	return errors.WrapPrefix(ErrCorruptLog, fmt.Sprintf(format, a...), 1)
}

func (fl *FileLog) dataFilename() string {
	return filepath.Join(fl.dir, fileLogDataFile)
}

// Create a new store: data file with header, then the meta file.
func (fl *FileLog) create() error {
	fl.meta = fileLogMeta{StoreId: uuid.New(), Length: 0}

	header := append(append([]byte{}, fileLogMagic...), fl.meta.StoreId[:]...)
	err := fileutil.WriteFileSync(fl.dataFilename(), header)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	err = fileutil.SyncDir(fl.dir)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	// The meta file is written last: a store without one is treated as new.
	err = fl.metaFile.Write(&fl.meta)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	fl.data, err = os.OpenFile(fl.dataFilename(), os.O_RDWR, 0666)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	fl.offsets = []int64{int64(len(header))}
	fl.terms = []TermNo{}
	return nil
}

// Load an existing store, verifying the header and the records up to the
// stored length.
func (fl *FileLog) load() error {
	var err error
	fl.data, err = os.OpenFile(fl.dataFilename(), os.O_RDWR, 0666)
	if err != nil {
		return corruptf("data file: %v", err)
	}

	header := make([]byte, len(fileLogMagic)+16)
	_, err = fl.data.ReadAt(header, 0)
	if err != nil {
		return corruptf("data file header: %v", err)
	}
	if !bytes.Equal(header[:len(fileLogMagic)], fileLogMagic) {
		return corruptf("data file header: bad magic")
	}
	storeId, err := uuid.FromBytes(header[len(fileLogMagic):])
	if err != nil {
		return corruptf("data file header: %v", err)
	}
	if storeId != fl.meta.StoreId {
		return corruptf("store id mismatch: data=%v meta=%v", storeId, fl.meta.StoreId)
	}

	offset := int64(len(header))
	fl.offsets = make([]int64, 0, fl.meta.Length+1)
	fl.terms = make([]TermNo, 0, fl.meta.Length)
	for i := LogIndex(1); i <= fl.meta.Length; i++ {
		entry, size, err := fl.readRecord(offset)
		if err != nil {
			return corruptf("record %d: %v", i, err)
		}
		fl.offsets = append(fl.offsets, offset)
		fl.terms = append(fl.terms, entry.TermNo)
		offset += size
	}
	fl.offsets = append(fl.offsets, offset)

	// Discard anything after the logical end of the log.
	err = fl.data.Truncate(offset)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	err = fl.data.Sync()
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Close the underlying data file.
func (fl *FileLog) Close() error {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	return fl.data.Close()
}

// GetStoreId returns the unique id of this store.
func (fl *FileLog) GetStoreId() uuid.UUID {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()
	return fl.meta.StoreId
}

func (fl *FileLog) GetIndexOfLastEntry() (LogIndex, error) {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()
	return LogIndex(len(fl.terms)), nil
}

func (fl *FileLog) GetTermAtIndex(li LogIndex) (TermNo, error) {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()
	if li == 0 {
		return 0, nil
	}
	iole := LogIndex(len(fl.terms))
	if li > iole {
		return 0, errors.WrapPrefix(
			ErrIndexAfterLastEntry, indexAfterLastEntryPrefix("GetTermAtIndex", li, iole), 0,
		)
	}
	return fl.terms[li-1], nil
}

func (fl *FileLog) GetEntryAtIndex(li LogIndex) (LogEntry, error) {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()
	if li == 0 {
		return LogEntry{}, errors.Errorf("GetEntryAtIndex(): li=0")
	}
	iole := LogIndex(len(fl.terms))
	if li > iole {
		return LogEntry{}, errors.WrapPrefix(
			ErrIndexAfterLastEntry, indexAfterLastEntryPrefix("GetEntryAtIndex", li, iole), 0,
		)
	}
	entry, _, err := fl.readRecord(fl.offsets[li-1])
	if err != nil {
		return LogEntry{}, corruptf("record %d: %v", li, err)
	}
	return entry, nil
}

func (fl *FileLog) GetEntriesAfterIndex(afterLogIndex LogIndex) ([]LogEntry, error) {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()

	iole := LogIndex(len(fl.terms))
	if iole < afterLogIndex {
		return nil, errors.Errorf("afterLogIndex=%v is > iole=%v", afterLogIndex, iole)
	}

	numEntriesToGet := uint64(iole - afterLogIndex)
	if numEntriesToGet > fl.maxEntries {
		numEntriesToGet = fl.maxEntries
	}

	logEntries := make([]LogEntry, 0, numEntriesToGet)
	for i := uint64(0); i < numEntriesToGet; i++ {
		li := afterLogIndex + 1 + LogIndex(i)
		entry, _, err := fl.readRecord(fl.offsets[li-1])
		if err != nil {
			return nil, corruptf("record %d: %v", li, err)
		}
		logEntries = append(logEntries, entry)
	}
	return logEntries, nil
}

func (fl *FileLog) SetEntriesAfterIndex(li LogIndex, entries []LogEntry) error {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	iole := LogIndex(len(fl.terms))
	if iole < li {
		return errors.Errorf("FileLog: setEntriesAfterIndex(%d, ...) but iole=%d", li, iole)
	}
	return fl.writeEntriesAfterIndex(li, entries)
}

func (fl *FileLog) TruncateFrom(li LogIndex) error {
	if li == 0 {
		return errors.Errorf("FileLog: TruncateFrom(0)")
	}
	return fl.SetEntriesAfterIndex(li-1, nil)
}

func (fl *FileLog) AppendEntry(logEntry LogEntry) (LogIndex, error) {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	li := LogIndex(len(fl.terms))
	err := fl.writeEntriesAfterIndex(li, []LogEntry{logEntry})
	if err != nil {
		return 0, err
	}
	return li + 1, nil
}

// Replace everything after the given index with the given entries.
//
// The length is first cut back to li in the meta file, so that no reader of
// the store sees a mix of old and new records, then the records are written
// and synced, and finally the new length is written to the meta file.
func (fl *FileLog) writeEntriesAfterIndex(li LogIndex, entries []LogEntry) error {
	iole := LogIndex(len(fl.terms))
	if li < iole {
		err := fl.writeMeta(li)
		if err != nil {
			return err
		}
		fl.terms = fl.terms[:li]
		fl.offsets = fl.offsets[:li+1]
	}

	if len(entries) == 0 {
		// Physically dropping the discarded records is best effort.
		_ = fl.data.Truncate(fl.offsets[li])
		return nil
	}

	var buf bytes.Buffer
	newOffsets := make([]int64, 0, len(entries))
	offset := fl.offsets[li]
	for _, entry := range entries {
		newOffsets = append(newOffsets, offset)
		size := encodeRecord(&buf, entry)
		offset += size
	}
	_, err := fl.data.WriteAt(buf.Bytes(), fl.offsets[li])
	if err != nil {
		return errors.WrapPrefix(err, "FATAL: FileLog write failed", 0)
	}
	err = fl.data.Sync()
	if err != nil {
		return errors.WrapPrefix(err, "FATAL: FileLog sync failed", 0)
	}

	newLength := li + LogIndex(len(entries))
	err = fl.writeMeta(newLength)
	if err != nil {
		return err
	}

	// offsets[li] is already the offset of the first new record
	fl.offsets = append(fl.offsets, newOffsets[1:]...)
	fl.offsets = append(fl.offsets, offset)
	for _, entry := range entries {
		fl.terms = append(fl.terms, entry.TermNo)
	}
	return nil
}

func (fl *FileLog) writeMeta(length LogIndex) error {
	meta := fileLogMeta{StoreId: fl.meta.StoreId, Length: length}
	err := fl.metaFile.Write(&meta)
	if err != nil {
		return errors.WrapPrefix(err, "FATAL: FileLog meta write failed", 0)
	}
	fl.meta = meta
	return nil
}

// Record format: length uint32 | crc32c(payload) uint32 | payload
// Payload format: term uint64 | entry type uint8 | command bytes
func encodeRecord(buf *bytes.Buffer, entry LogEntry) int64 {
	payload := make([]byte, payloadFixedSize+len(entry.Command))
	binary.BigEndian.PutUint64(payload[0:8], uint64(entry.TermNo))
	payload[8] = byte(entry.EntryType)
	copy(payload[payloadFixedSize:], entry.Command)

	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.Checksum(payload, crcTable))
	buf.Write(header[:])
	buf.Write(payload)
	return int64(recordHeaderSize + len(payload))
}

func (fl *FileLog) readRecord(offset int64) (LogEntry, int64, error) {
	var header [recordHeaderSize]byte
	_, err := fl.data.ReadAt(header[:], offset)
	if err != nil {
		if err == io.EOF {
			return LogEntry{}, 0, errors.Errorf("unexpected end of file")
		}
		return LogEntry{}, 0, err
	}
	length := binary.BigEndian.Uint32(header[0:4])
	if length < payloadFixedSize {
		return LogEntry{}, 0, errors.Errorf("bad record length %d", length)
	}
	payload := make([]byte, length)
	_, err = fl.data.ReadAt(payload, offset+recordHeaderSize)
	if err != nil {
		if err == io.EOF {
			return LogEntry{}, 0, errors.Errorf("unexpected end of file")
		}
		return LogEntry{}, 0, err
	}
	if crc32.Checksum(payload, crcTable) != binary.BigEndian.Uint32(header[4:8]) {
		return LogEntry{}, 0, errors.Errorf("bad checksum")
	}

	entry := LogEntry{
		TermNo:    TermNo(binary.BigEndian.Uint64(payload[0:8])),
		EntryType: EntryType(payload[8]),
	}
	if len(payload) > payloadFixedSize {
		entry.Command = Command(payload[payloadFixedSize:])
	}
	return entry, int64(recordHeaderSize) + int64(length), nil
}
