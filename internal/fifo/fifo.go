// Package fifo implements a circular byte buffer used to accumulate
// partially received bytes before a complete unit (a framed packet)
// can be extracted from them.
package fifo

import "github.com/xrce-agent/agent/internal/crc"

// Fifo is a circular byte buffer with a "provisional" read cursor
// (Alt*) on top of the regular one: a caller can scan ahead into
// unread bytes looking for a complete frame, then either commit the
// scan (AltFinish) or simply re-AltBegin from the un-advanced regular
// cursor to retry later once more bytes have arrived.
type Fifo struct {
	buffer     []byte
	writePos   int
	readPos    int
	altReadPos int
}

func New(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
	f.altReadPos = 0
}

// GetSpace returns how many more bytes can be written without
// overwriting unread data.
func (f *Fifo) GetSpace() int {
	sizeLeft := f.readPos - f.writePos - 1
	if sizeLeft < 0 {
		sizeLeft += len(f.buffer)
	}
	return sizeLeft
}

// GetOccupied returns how many unread bytes are buffered.
func (f *Fifo) GetOccupied() int {
	sizeOccupied := f.writePos - f.readPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// Write appends bytes, silently truncating at capacity; returns the
// number of bytes actually written. If crc is non-nil, every written
// byte is folded into it.
func (f *Fifo) Write(buffer []byte, crc16 *crc.CRC16) int {
	if buffer == nil {
		return 0
	}
	writeCounter := 0
	for _, element := range buffer {
		writePosNext := f.writePos + 1
		if writePosNext == f.readPos || (writePosNext == len(f.buffer) && f.readPos == 0) {
			break
		}
		f.buffer[f.writePos] = element
		writeCounter++
		if crc16 != nil {
			crc16.Single(element)
		}
		if writePosNext == len(f.buffer) {
			f.writePos = 0
		} else {
			f.writePos++
		}
	}
	return writeCounter
}

// Read drains up to len(buffer) bytes, advancing the regular cursor.
func (f *Fifo) Read(buffer []byte) int {
	readCounter := 0
	if buffer == nil {
		return 0
	}
	for index := range buffer {
		if f.readPos == f.writePos {
			break
		}
		buffer[index] = f.buffer[f.readPos]
		readCounter++
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
	return readCounter
}

// AltBegin resets the provisional cursor to the regular one and
// advances it by offset bytes (or fewer, if that runs into unwritten
// space); it returns how far it actually moved.
func (f *Fifo) AltBegin(offset int) int {
	var i int
	f.altReadPos = f.readPos
	for i = offset; i > 0; i-- {
		if f.altReadPos == f.writePos {
			break
		}
		f.altReadPos++
		if f.altReadPos == len(f.buffer) {
			f.altReadPos = 0
		}
	}
	return offset - i
}

// AltFinish commits the provisional cursor: bytes between the regular
// cursor and the provisional one are consumed. If crc16 is non-nil
// those bytes are folded into it as they are skipped.
func (f *Fifo) AltFinish(crc16 *crc.CRC16) {
	if crc16 == nil {
		f.readPos = f.altReadPos
		return
	}
	for f.readPos != f.altReadPos {
		crc16.Single(f.buffer[f.readPos])
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
}

// AltRead reads from the provisional cursor without touching the
// regular one.
func (f *Fifo) AltRead(buffer []byte) int {
	readCounter := 0
	for index := range buffer {
		if f.altReadPos == f.writePos {
			break
		}
		buffer[index] = f.buffer[f.altReadPos]
		readCounter++
		f.altReadPos++
		if f.altReadPos == len(f.buffer) {
			f.altReadPos = 0
		}
	}
	return readCounter
}

// AltPeek returns the byte at offset past the regular read cursor,
// and whether that offset is within unread data.
func (f *Fifo) AltPeek(offset int) (byte, bool) {
	if offset >= f.GetOccupied() {
		return 0, false
	}
	pos := f.readPos + offset
	if pos >= len(f.buffer) {
		pos -= len(f.buffer)
	}
	return f.buffer[pos], true
}

func (f *Fifo) AltGetOccupied() int {
	sizeOccupied := f.writePos - f.altReadPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// SkipOne advances the regular read cursor by a single byte, discarding it.
func (f *Fifo) SkipOne() bool {
	if f.readPos == f.writePos {
		return false
	}
	f.readPos++
	if f.readPos == len(f.buffer) {
		f.readPos = 0
	}
	return true
}
