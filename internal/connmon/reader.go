package connmon

import (
	"fmt"
	"sync"
)

// maxTableSize caps a single table buffer. Larger size answers are treated
// as a failed allocation.
const maxTableSize = 64 << 20

// TableQuerier is the size-negotiated OS table API.
//
// QuerySize reports the bytes needed for the current table. QueryFill copies
// the table into buf, which is exactly size bytes long, and returns the OS
// status: 0 on success, anything else when the table is unavailable now.
type TableQuerier interface {
	QuerySize(proto Protocol) (int, error)
	QueryFill(proto Protocol, buf []byte, size int) uint32
}

// TableReader reads owner-pid tables through a TableQuerier.
type TableReader struct {
	querier TableQuerier
	procs   ProcessLister
	log     Logger
}

// NewTableReader creates a reader. procs may be nil, in which case process
// names are left unresolved.
func NewTableReader(querier TableQuerier, procs ProcessLister, log Logger) *TableReader {
	return &TableReader{
		querier: querier,
		procs:   procs,
		log:     log,
	}
}

// Snapshot reads, decodes, names and deduplicates one table. Failures are
// logged and produce an empty or partial result.
func (r *TableReader) Snapshot(proto Protocol) []Connection {
	conns, err := r.read(proto)
	if err != nil {
		r.log.Error("%s connection table: %v", proto, err)
	}

	resolveNames(conns, r.procs, r.log)
	return dedupe(conns)
}

func (r *TableReader) read(proto Protocol) (conns []Connection, err error) {
	size, err := r.querier.QuerySize(proto)
	if err != nil {
		return nil, fmt.Errorf("size query failed: %w", err)
	}
	if size == 0 {
		return nil, nil
	}

	buf, release, err := acquireBuffer(size)
	if err != nil {
		return nil, err
	}
	defer release()

	if status := r.querier.QueryFill(proto, buf, size); status != 0 {
		return nil, fmt.Errorf("table query returned status %d", status)
	}

	defer func() {
		if p := recover(); p != nil {
			conns, err = nil, fmt.Errorf("decode panic: %v", p)
		}
	}()
	return DecodeTable(proto, buf)
}

var tableBuffers = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 16<<10)
		return &b
	},
}

// acquireBuffer returns a zeroed buffer of exactly n bytes and the func that
// hands it back. Decoded connections never alias the buffer.
func acquireBuffer(n int) ([]byte, func(), error) {
	if n < 0 || n > maxTableSize {
		return nil, nil, fmt.Errorf("refusing to allocate %d byte table buffer", n)
	}

	bp := tableBuffers.Get().(*[]byte)
	if cap(*bp) < n {
		*bp = make([]byte, n)
	}
	buf := (*bp)[:n]
	clear(buf)

	release := func() {
		*bp = buf[:0]
		tableBuffers.Put(bp)
	}
	return buf, release, nil
}
