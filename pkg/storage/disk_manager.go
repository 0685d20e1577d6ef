package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DiskManager handles physical I/O for page files. Rather than a single
// shared data file addressed by a numeric PageID, colstore gives every
// page its own file named by its data-defined coordinates
// (spec.md §6, §9: "identity must be data-defined, not memory-defined"):
//
//	<root>/tables/<table>/pagerange<i>/base<j>.bin
//	<root>/tables/<table>/pagerange<i>/tail<j>.bin
type DiskManager struct {
	root string

	mu          sync.Mutex
	totalReads  int64
	totalWrites int64

	codec Codec
}

// Codec compresses and decompresses page payloads before they reach
// disk. Matches *compression.Compressor's method set, so a DiskManager
// can be handed one directly via SetCodec.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NewDiskManager creates a DiskManager rooted at root, creating the
// directory if it does not exist.
func NewDiskManager(root string) (*DiskManager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, NewError("disk_manager.new", KindIO, err)
	}
	return &DiskManager{root: root}, nil
}

// SetCodec installs a page codec; pages written after this call are
// compressed on disk and transparently decompressed on read. Pages
// already on disk in the old format are not retroactively rewritten.
func (dm *DiskManager) SetCodec(c Codec) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.codec = c
}

func (dm *DiskManager) pagePath(id Identity) string {
	var name string
	switch id.Kind {
	case KindBase:
		name = fmt.Sprintf("base%d.bin", id.PageID)
	case KindTail:
		name = fmt.Sprintf("tail%d.bin", id.PageID)
	default:
		name = fmt.Sprintf("page%d.bin", id.PageID)
	}
	return filepath.Join(dm.root, "tables", id.Table, fmt.Sprintf("pagerange%d", id.PageRangeID), name)
}

// PageExists reports whether id's page file is present on disk.
func (dm *DiskManager) PageExists(id Identity) bool {
	_, err := os.Stat(dm.pagePath(id))
	return err == nil
}

// WriteBase serializes and writes a base page to disk.
func (dm *DiskManager) WriteBase(id Identity, bp *BasePage, tps int64) error {
	payload := encodeRecordPage(false, bp, nil, tps)
	return dm.writeFile(id, payload)
}

// WriteTail serializes and writes a tail page to disk.
func (dm *DiskManager) WriteTail(id Identity, tp *TailPage, tps int64) error {
	payload := encodeRecordPage(true, &tp.BasePage, tp.BaseRID, tps)
	return dm.writeFile(id, payload)
}

func (dm *DiskManager) writeFile(id Identity, payload []byte) error {
	path := dm.pagePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewError("disk_manager.write", KindIO, err)
	}

	dm.mu.Lock()
	codec := dm.codec
	dm.mu.Unlock()
	if codec != nil {
		compressed, err := codec.Compress(payload)
		if err != nil {
			return NewError("disk_manager.write", KindIO, err)
		}
		payload = compressed
	}

	sum := checksum(payload)
	full := append(payload, sum[:]...)

	if err := os.WriteFile(path, full, 0644); err != nil {
		return NewError("disk_manager.write", KindIO, err)
	}

	dm.mu.Lock()
	dm.totalWrites++
	dm.mu.Unlock()
	return nil
}

// ReadBase reads and deserializes a base page. Returns a KindNotFound
// error if no file exists at id's coordinates.
func (dm *DiskManager) ReadBase(id Identity, numUserCol int) (*BasePage, int64, error) {
	body, err := dm.readFile(id)
	if err != nil {
		return nil, 0, err
	}
	isTail, bp, _, tps, err := decodeRecordPage(body, numUserCol)
	if err != nil {
		return nil, 0, err
	}
	if isTail {
		return nil, 0, NewError("disk_manager.read_base", KindInvariant, fmt.Errorf("%s: tail page where base page expected", id))
	}
	return bp, tps, nil
}

// ReadTail reads and deserializes a tail page.
func (dm *DiskManager) ReadTail(id Identity, numUserCol int) (*TailPage, int64, error) {
	body, err := dm.readFile(id)
	if err != nil {
		return nil, 0, err
	}
	isTail, bp, baseRIDs, tps, err := decodeRecordPage(body, numUserCol)
	if err != nil {
		return nil, 0, err
	}
	if !isTail {
		return nil, 0, NewError("disk_manager.read_tail", KindInvariant, fmt.Errorf("%s: base page where tail page expected", id))
	}
	return &TailPage{BasePage: *bp, BaseRID: baseRIDs}, tps, nil
}

func (dm *DiskManager) readFile(id Identity) ([]byte, error) {
	path := dm.pagePath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError("disk_manager.read", KindNotFound, err)
		}
		return nil, NewError("disk_manager.read", KindIO, err)
	}
	if len(data) < checksumSize {
		return nil, NewError("disk_manager.read", KindIO, fmt.Errorf("%s: truncated page file", id))
	}

	body, trailer := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	want := checksum(body)
	if !bytes.Equal(want[:], trailer) {
		return nil, NewError("disk_manager.read", KindIO, fmt.Errorf("%s: checksum mismatch, page corrupt", id))
	}

	dm.mu.Lock()
	dm.totalReads++
	codec := dm.codec
	dm.mu.Unlock()

	if codec != nil {
		decompressed, err := codec.Decompress(body)
		if err != nil {
			return nil, NewError("disk_manager.read", KindIO, err)
		}
		return decompressed, nil
	}
	return body, nil
}

// Stats returns read/write counters for introspection.
func (dm *DiskManager) Stats() map[string]interface{} {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return map[string]interface{}{
		"total_reads":  dm.totalReads,
		"total_writes": dm.totalWrites,
	}
}

// --- page file envelope ---
//
// header: kind(1 byte: 0=base,1=tail) | numUserCol(int32) | numRecords(int32) | tps(int64)
// then, per user column: RecordsPerPage int64 values (full R width, stable across runs)
// then: RID array (R entries x 4 int64), indirection array (R x 4 int64),
// schema-encoding array (R x uint64), start-time array (R x int64)
// then, only for tail pages: base-RID array (R x 4 int64)

func encodeRecordPage(isTail bool, bp *BasePage, baseRID []RID, tps int64) []byte {
	buf := &bytes.Buffer{}

	var kindByte byte
	if isTail {
		kindByte = 1
	}
	buf.WriteByte(kindByte)
	_ = binary.Write(buf, binary.LittleEndian, int32(len(bp.Columns)))
	_ = binary.Write(buf, binary.LittleEndian, int32(bp.NumRecords))
	_ = binary.Write(buf, binary.LittleEndian, tps)

	for _, col := range bp.Columns {
		_ = binary.Write(buf, binary.LittleEndian, col.Values)
	}

	writeRIDArray(buf, bp.RIDs)
	writeRIDArray(buf, bp.Indirection)
	writeUint64Array(buf, bp.SchemaEncoding)
	writeInt64Array(buf, bp.StartTime)

	if isTail {
		writeRIDArray(buf, baseRID)
	}

	return buf.Bytes()
}

func decodeRecordPage(data []byte, numUserCol int) (isTail bool, bp *BasePage, baseRID []RID, tps int64, err error) {
	r := bytes.NewReader(data)

	kindByte, err := r.ReadByte()
	if err != nil {
		return false, nil, nil, 0, NewError("decode_record_page", KindIO, err)
	}
	isTail = kindByte == 1

	var gotCols, numRecords int32
	if err = binary.Read(r, binary.LittleEndian, &gotCols); err != nil {
		return false, nil, nil, 0, NewError("decode_record_page", KindIO, err)
	}
	if int(gotCols) != numUserCol {
		return false, nil, nil, 0, NewError("decode_record_page", KindInvariant, fmt.Errorf("column count mismatch: file has %d, table has %d", gotCols, numUserCol))
	}
	if err = binary.Read(r, binary.LittleEndian, &numRecords); err != nil {
		return false, nil, nil, 0, NewError("decode_record_page", KindIO, err)
	}
	if err = binary.Read(r, binary.LittleEndian, &tps); err != nil {
		return false, nil, nil, 0, NewError("decode_record_page", KindIO, err)
	}

	bp = NewBasePage(numUserCol)
	bp.NumRecords = int(numRecords)
	for i := 0; i < numUserCol; i++ {
		if err = binary.Read(r, binary.LittleEndian, &bp.Columns[i].Values); err != nil {
			return false, nil, nil, 0, NewError("decode_record_page", KindIO, err)
		}
		bp.Columns[i].NumRecords = int(numRecords)
	}

	if bp.RIDs, err = readRIDArray(r); err != nil {
		return false, nil, nil, 0, err
	}
	if bp.Indirection, err = readRIDArray(r); err != nil {
		return false, nil, nil, 0, err
	}
	if bp.SchemaEncoding, err = readUint64Array(r); err != nil {
		return false, nil, nil, 0, err
	}
	if bp.StartTime, err = readInt64Array(r); err != nil {
		return false, nil, nil, 0, err
	}
	bp.RIDs = bp.RIDs[:numRecords]
	bp.Indirection = bp.Indirection[:numRecords]
	bp.SchemaEncoding = bp.SchemaEncoding[:numRecords]
	bp.StartTime = bp.StartTime[:numRecords]

	if isTail {
		if baseRID, err = readRIDArray(r); err != nil {
			return false, nil, nil, 0, err
		}
		baseRID = baseRID[:numRecords]
	}

	return isTail, bp, baseRID, tps, nil
}

func writeRIDArray(buf *bytes.Buffer, rids []RID) {
	for i := 0; i < RecordsPerPage; i++ {
		var r RID
		if i < len(rids) {
			r = rids[i]
		}
		_ = binary.Write(buf, binary.LittleEndian, r.PageRangeID)
		_ = binary.Write(buf, binary.LittleEndian, r.PageID)
		_ = binary.Write(buf, binary.LittleEndian, r.SlotID)
		_ = binary.Write(buf, binary.LittleEndian, int64(r.Kind))
	}
}

func readRIDArray(r io.Reader) ([]RID, error) {
	out := make([]RID, RecordsPerPage)
	for i := range out {
		var prID, pgID, slotID, kind int64
		if err := binary.Read(r, binary.LittleEndian, &prID); err != nil {
			return nil, NewError("read_rid_array", KindIO, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &pgID); err != nil {
			return nil, NewError("read_rid_array", KindIO, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &slotID); err != nil {
			return nil, NewError("read_rid_array", KindIO, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, NewError("read_rid_array", KindIO, err)
		}
		out[i] = RID{PageRangeID: prID, PageID: pgID, SlotID: slotID, Kind: Kind(kind)}
	}
	return out, nil
}

func writeUint64Array(buf *bytes.Buffer, vals []uint64) {
	full := make([]uint64, RecordsPerPage)
	copy(full, vals)
	_ = binary.Write(buf, binary.LittleEndian, full)
}

func readUint64Array(r io.Reader) ([]uint64, error) {
	out := make([]uint64, RecordsPerPage)
	if err := binary.Read(r, binary.LittleEndian, &out); err != nil {
		return nil, NewError("read_uint64_array", KindIO, err)
	}
	return out, nil
}

func writeInt64Array(buf *bytes.Buffer, vals []int64) {
	full := make([]int64, RecordsPerPage)
	copy(full, vals)
	_ = binary.Write(buf, binary.LittleEndian, full)
}

func readInt64Array(r io.Reader) ([]int64, error) {
	out := make([]int64, RecordsPerPage)
	if err := binary.Read(r, binary.LittleEndian, &out); err != nil {
		return nil, NewError("read_int64_array", KindIO, err)
	}
	return out, nil
}
