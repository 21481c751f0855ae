package core

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/utils"
)

// MessageType identifies an object header message.
type MessageType uint16

const (
	MsgNIL              MessageType = 0x0000
	MsgDataspace        MessageType = 0x0001
	MsgLinkInfo         MessageType = 0x0002
	MsgDatatype         MessageType = 0x0003
	MsgFillValueOld     MessageType = 0x0004
	MsgFillValue        MessageType = 0x0005
	MsgLink             MessageType = 0x0006
	MsgExternalFiles    MessageType = 0x0007
	MsgDataLayout       MessageType = 0x0008
	MsgGroupInfo        MessageType = 0x000A
	MsgFilterPipeline   MessageType = 0x000B
	MsgAttribute        MessageType = 0x000C
	MsgObjectComment    MessageType = 0x000D
	MsgContinuation     MessageType = 0x0010
	MsgSymbolTable      MessageType = 0x0011
	MsgModificationTime MessageType = 0x0012
	MsgAttributeInfo    MessageType = 0x0015
	MsgObjectRefCount   MessageType = 0x0016
)

// HeaderMessage is one raw message with its framing flags. Data is the
// unpadded body; codecs in this package decode it per type.
type HeaderMessage struct {
	Type          MessageType
	Flags         uint8
	CreationOrder uint16
	Data          []byte
}

// ObjectKind classifies a header by its message census.
type ObjectKind int

const (
	KindUnknown ObjectKind = iota
	KindGroup
	KindDataset
)

// ObjectHeader is a parsed object header, either version. Messages
// from continuation blocks are folded into the same list.
type ObjectHeader struct {
	Version  uint8
	Address  uint64
	Messages []HeaderMessage
}

// Find returns the first message of the given type, or nil.
func (oh *ObjectHeader) Find(t MessageType) *HeaderMessage {
	for i := range oh.Messages {
		if oh.Messages[i].Type == t {
			return &oh.Messages[i]
		}
	}
	return nil
}

// FindAll returns every message of the given type in header order.
func (oh *ObjectHeader) FindAll(t MessageType) []*HeaderMessage {
	var out []*HeaderMessage
	for i := range oh.Messages {
		if oh.Messages[i].Type == t {
			out = append(out, &oh.Messages[i])
		}
	}
	return out
}

// Kind classifies the object: group-style messages make it a group, a
// dataset needs the full datatype, dataspace and layout triple. A
// header with only part of the triple (a committed datatype, say) is
// neither.
func (oh *ObjectHeader) Kind() ObjectKind {
	var datatype, dataspace, layout bool
	for i := range oh.Messages {
		switch oh.Messages[i].Type {
		case MsgSymbolTable, MsgLinkInfo, MsgLink, MsgGroupInfo:
			return KindGroup
		case MsgDatatype:
			datatype = true
		case MsgDataspace:
			dataspace = true
		case MsgDataLayout:
			layout = true
		}
	}
	if datatype && dataspace && layout {
		return KindDataset
	}
	return KindUnknown
}

// maxContinuations bounds continuation chasing on corrupt files.
const maxContinuations = 64

// verifyChunkChecksum checks the lookup3 checksum stored at end
// against the bytes of [start, end).
func verifyChunkChecksum(src io.ReaderAt, sb *Superblock, start, end uint64) error {
	if end <= start {
		return fmt.Errorf("chunk bounds inverted")
	}
	buf := make([]byte, end-start)
	if _, err := src.ReadAt(buf, int64(start)); err != nil {
		return utils.WrapError("chunk bytes", err)
	}
	want, err := sb.Reader(src, end).ReadUint32()
	if err != nil {
		return err
	}
	if Lookup3(buf) != want {
		return ErrBadChecksum
	}
	return nil
}

// ReadObjectHeader parses the object header at addr, following
// continuation blocks. Version is sniffed from the first bytes: v2
// headers start with the OHDR signature, v1 headers with a 1 byte.
func ReadObjectHeader(src io.ReaderAt, addr uint64, sb *Superblock) (*ObjectHeader, error) {
	sig := make([]byte, 4)
	if _, err := src.ReadAt(sig, int64(addr)); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("object header at %d", addr), err)
	}
	if string(sig) == "OHDR" {
		return readObjectHeaderV2(src, addr, sb)
	}
	if sig[0] == 1 {
		return readObjectHeaderV1(src, addr, sb)
	}
	return nil, fmt.Errorf("object header at %d: unrecognized version byte %d", addr, sig[0])
}

// readObjectHeaderV1 parses the prologue (version, message count,
// reference count, header size, 4 bytes of padding to reach an 8-byte
// boundary) and then the aligned message stream.
func readObjectHeaderV1(src io.ReaderAt, addr uint64, sb *Superblock) (*ObjectHeader, error) {
	r := sb.Reader(src, addr)
	oh := &ObjectHeader{Version: 1, Address: addr}

	if _, err := r.ReadUint8(); err != nil {
		return nil, err
	}
	r.Skip(1)
	numMessages, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadUint32(); err != nil { // reference count
		return nil, err
	}
	headerSize, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	r.Skip(4) // pad to 8

	type block struct{ addr, size uint64 }
	blocks := []block{{r.Pos(), uint64(headerSize)}}

	// continuation messages count toward the header's message total
	parsed := 0
	for bi := 0; bi < len(blocks); bi++ {
		if bi > maxContinuations {
			return nil, fmt.Errorf("object header at %d: too many continuation blocks", addr)
		}
		br := sb.Reader(src, blocks[bi].addr)
		end := blocks[bi].addr + blocks[bi].size
		for parsed < int(numMessages) && br.Pos()+8 <= end {
			msgType, err := br.ReadUint16()
			if err != nil {
				return nil, err
			}
			msgSize, err := br.ReadUint16()
			if err != nil {
				return nil, err
			}
			flags, err := br.ReadUint8()
			if err != nil {
				return nil, err
			}
			br.Skip(3)
			if br.Pos()+uint64(msgSize) > end {
				return nil, fmt.Errorf("object header at %d: message overruns block", addr)
			}
			body, err := br.ReadBytes(int(msgSize))
			if err != nil {
				return nil, err
			}
			// v1 message bodies are padded to 8 bytes
			if rem := msgSize % 8; rem != 0 {
				br.Skip(int64(8 - rem))
			}
			parsed++

			if MessageType(msgType) == MsgContinuation {
				if len(body) < int(sb.OffsetSize)+int(sb.LengthSize) {
					return nil, fmt.Errorf("object header at %d: continuation message truncated", addr)
				}
				contAddr := DecodeUintN(body, sb.OffsetSize)
				contSize := DecodeUintN(body[sb.OffsetSize:], sb.LengthSize)
				blocks = append(blocks, block{contAddr, contSize})
				continue
			}
			oh.Messages = append(oh.Messages, HeaderMessage{
				Type:  MessageType(msgType),
				Flags: flags,
				Data:  body,
			})
		}
	}
	return oh, nil
}

// readObjectHeaderV2 parses an OHDR header. The flags byte sizes the
// chunk-0 length field as 1<<(flags&3) bytes and gates optional time
// and phase-change fields; flag bit 2 adds a 2-byte creation order to
// every message. Continuation blocks carry an OCHK signature and,
// like the header chunk, end in a lookup3 checksum.
func readObjectHeaderV2(src io.ReaderAt, addr uint64, sb *Superblock) (*ObjectHeader, error) {
	r := sb.Reader(src, addr)
	oh := &ObjectHeader{Version: 2, Address: addr}

	if _, err := r.ReadBytes(4); err != nil { // OHDR
		return nil, err
	}
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, fmt.Errorf("object header at %d: unsupported v2 subversion %d", addr, version)
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if flags&0x20 != 0 {
		r.Skip(16) // access, modification, change, birth times
	}
	if flags&0x10 != 0 {
		r.Skip(4) // max compact / min dense attribute counts
	}
	chunk0Size, err := r.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return nil, err
	}
	trackOrder := flags&0x04 != 0

	type block struct {
		addr, size uint64
		signed     bool
	}
	blocks := []block{{r.Pos(), chunk0Size, false}}

	for bi := 0; bi < len(blocks); bi++ {
		if bi > maxContinuations {
			return nil, fmt.Errorf("object header at %d: too many continuation blocks", addr)
		}
		start := blocks[bi].addr
		size := blocks[bi].size
		if size < 8 {
			return nil, fmt.Errorf("object header at %d: chunk of %d bytes too small", addr, size)
		}
		// the checksum spans the whole chunk, prologue and OCHK
		// signature included
		chkStart := start
		if bi == 0 {
			chkStart = addr
		}
		if err := verifyChunkChecksum(src, sb, chkStart, start+size-4); err != nil {
			return nil, fmt.Errorf("object header at %d: %w", addr, err)
		}
		br := sb.Reader(src, start)
		if blocks[bi].signed {
			sig, err := br.ReadBytes(4)
			if err != nil {
				return nil, err
			}
			if string(sig) != "OCHK" {
				return nil, fmt.Errorf("object header continuation at %d: bad signature", start)
			}
			size -= 4
		}
		// the last 4 bytes of every chunk are its checksum
		end := br.Pos() + size - 4

		minMsg := uint64(4)
		if trackOrder {
			minMsg += 2
		}
		for br.Pos()+minMsg <= end {
			msgType, err := br.ReadUint8()
			if err != nil {
				return nil, err
			}
			msgSize, err := br.ReadUint16()
			if err != nil {
				return nil, err
			}
			msgFlags, err := br.ReadUint8()
			if err != nil {
				return nil, err
			}
			var order uint16
			if trackOrder {
				if order, err = br.ReadUint16(); err != nil {
					return nil, err
				}
			}
			if br.Pos()+uint64(msgSize) > end {
				return nil, fmt.Errorf("object header at %d: message overruns chunk", addr)
			}
			body, err := br.ReadBytes(int(msgSize))
			if err != nil {
				return nil, err
			}

			if MessageType(msgType) == MsgContinuation {
				if len(body) < int(sb.OffsetSize)+int(sb.LengthSize) {
					return nil, fmt.Errorf("object header at %d: continuation message truncated", addr)
				}
				contAddr := DecodeUintN(body, sb.OffsetSize)
				contSize := DecodeUintN(body[sb.OffsetSize:], sb.LengthSize)
				blocks = append(blocks, block{contAddr, contSize, true})
				continue
			}
			oh.Messages = append(oh.Messages, HeaderMessage{
				Type:          MessageType(msgType),
				Flags:         msgFlags,
				CreationOrder: order,
				Data:          body,
			})
		}
	}
	return oh, nil
}
