package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/marsevilspirit/greeter/util"
)

const (
	magicNumber byte = 0x42

	headerLen = 12
)

// MaxMessageLength caps the body of a single decoded message.
var MaxMessageLength uint32 = 16 << 20

// ServiceError is the metadata key carrying a call's error text.
const ServiceError = "__rpc_error__"

var (
	lineSeparator = []byte("\r\n")
)

var (
	ErrMetaKVMissing  = errors.New("wrong metadata lines. some keys or values are missing")
	ErrMagicNumber    = errors.New("wrong magic number")
	ErrMessageTooLong = errors.New("message is too long")
	ErrMessageCorrupt = errors.New("message body is corrupt")
)

type MessageType byte

// MessageType只有两种
// Request 和 Response
const (
	Request MessageType = iota
	Response
)

type MessageStatusType byte

const (
	Normal MessageStatusType = iota
	Error
)

type CompressType byte

const (
	None CompressType = iota
	Gzip
)

type SerializeType byte

const (
	SerializeNone SerializeType = iota
	JSON
	ProtoBuffer
	MsgPack
)

// Message is one framed request or response.
type Message struct {
	*Header
	ServicePath   string
	ServiceMethod string
	Metadata      map[string]string
	Payload       []byte
}

func NewMessage() *Message {
	header := Header([headerLen]byte{})
	header[0] = magicNumber
	return &Message{
		Header:   &header,
		Metadata: make(map[string]string),
	}
}

// Header:
// +----------------------------------------------+
// |magicNumber|version|h[2]|SerializeType|Seq...|
// +----------------------------------------------+
//
// h[2]的第8位是MessageType, 第7位是IsHeartbeat, 第6位是IsOneway
// 第5-3位是CompressType, 第2-1位是MessageStatusType
type Header [headerLen]byte

func (h Header) CheckMagicNumber() bool {
	return h[0] == magicNumber
}

func (h Header) Version() byte {
	return h[1]
}

func (h *Header) SetVersion(v byte) {
	h[1] = v
}

// 0x80在二进制中是1000 0000
// 用 & 提取第三字节的最高位
func (h Header) MessageType() MessageType {
	return MessageType((h[2] & 0x80) >> 7)
}

func (h *Header) SetMessageType(mt MessageType) {
	h[2] = (h[2] &^ 0x80) | (byte(mt) << 7 & 0x80)
}

func (h Header) IsHeartbeat() bool {
	return h[2]&0x40 == 0x40
}

func (h *Header) SetHeartbeat(hb bool) {
	if hb {
		h[2] = h[2] | 0x40
	} else {
		h[2] = h[2] &^ 0x40
	}
}

func (h Header) IsOneway() bool {
	return h[2]&0x20 == 0x20
}

func (h *Header) SetOneway(oneway bool) {
	if oneway {
		h[2] = h[2] | 0x20
	} else {
		h[2] = h[2] &^ 0x20
	}
}

func (h Header) CompressType() CompressType {
	return CompressType((h[2] & 0x1C) >> 2)
}

func (h *Header) SetCompressType(ct CompressType) {
	h[2] = (h[2] &^ 0x1C) | ((byte(ct) << 2) & 0x1C)
}

func (h Header) MessageStatusType() MessageStatusType {
	return MessageStatusType(h[2] & 0x03)
}

func (h *Header) SetMessageStatusType(mt MessageStatusType) {
	h[2] = (h[2] &^ 0x03) | (byte(mt) & 0x03)
}

// 0xF0 是 1111 0000
func (h Header) SerializeType() SerializeType {
	return SerializeType((h[3] & 0xF0) >> 4)
}

func (h *Header) SetSerializeType(st SerializeType) {
	h[3] = (h[3] &^ 0xF0) | (byte(st) << 4)
}

func (h Header) Seq() uint64 {
	return binary.BigEndian.Uint64(h[4:])
}

func (h *Header) SetSeq(seq uint64) {
	binary.BigEndian.PutUint64(h[4:], seq)
}

// Clone copies the header, path and method. Metadata and payload start empty.
func (m Message) Clone() *Message {
	header := *m.Header
	c := GetPoolMsg()
	*c.Header = header
	c.ServicePath = m.ServicePath
	c.ServiceMethod = m.ServiceMethod
	return c
}

// Reset clears the message for reuse, keeping the magic number.
func (m *Message) Reset() {
	resetHeader(m.Header)
	m.ServicePath = ""
	m.ServiceMethod = ""
	m.Metadata = nil
	m.Payload = nil
}

func resetHeader(h *Header) {
	*h = Header{}
	h[0] = magicNumber
}

// Encode 编码为:
// header(12) | total(4) | path(4+n) | method(4+n) | metadata(4+n) | payload(4+n)
func (m Message) Encode() []byte {
	meta := encodeMetadata(m.Metadata)

	spL := len(m.ServicePath)
	smL := len(m.ServiceMethod)
	totalL := (4 + spL) + (4 + smL) + (4 + len(meta)) + (4 + len(m.Payload))

	data := make([]byte, headerLen+4+totalL)
	copy(data, m.Header[:])
	binary.BigEndian.PutUint32(data[headerLen:], uint32(totalL))

	off := headerLen + 4
	off = putChunk(data, off, util.StringToSliceByte(m.ServicePath))
	off = putChunk(data, off, util.StringToSliceByte(m.ServiceMethod))
	off = putChunk(data, off, meta)
	putChunk(data, off, m.Payload)

	return data
}

func putChunk(data []byte, off int, chunk []byte) int {
	binary.BigEndian.PutUint32(data[off:], uint32(len(chunk)))
	off += 4
	copy(data[off:], chunk)
	return off + len(chunk)
}

// WriteTo writes the encoded message to w.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.Encode())
	return int64(n), err
}

func encodeMetadata(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte{}
	}
	var buf bytes.Buffer
	for k, v := range m {
		buf.WriteString(k)
		buf.Write(lineSeparator)
		buf.WriteString(v)
		buf.Write(lineSeparator)
	}

	return buf.Bytes()
}

func decodeMetadata(data []byte) (map[string]string, error) {
	m := make(map[string]string)
	if len(data) == 0 {
		return m, nil
	}

	meta := bytes.Split(data, lineSeparator)
	// 末尾的分隔符会多切出一个空元素
	if len(meta)%2 != 1 {
		return nil, ErrMetaKVMissing
	}

	for i := 0; i < len(meta)-1; i = i + 2 {
		m[util.SliceByteToString(meta[i])] = util.SliceByteToString(meta[i+1])
	}

	return m, nil
}

// Decode reads one message from r into m.
func (m *Message) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Header[:])
	if err != nil {
		return err
	}
	if !m.CheckMagicNumber() {
		return fmt.Errorf("%w: %#x", ErrMagicNumber, m.Header[0])
	}

	lenData := make([]byte, 4)
	_, err = io.ReadFull(r, lenData)
	if err != nil {
		return err
	}
	l := binary.BigEndian.Uint32(lenData)
	if MaxMessageLength > 0 && l > MaxMessageLength {
		return ErrMessageTooLong
	}

	data := make([]byte, l)
	_, err = io.ReadFull(r, data)
	if err != nil {
		return err
	}

	var chunk []byte
	off := 0

	if chunk, off, err = readChunk(data, off); err != nil {
		return err
	}
	m.ServicePath = util.SliceByteToString(chunk)

	if chunk, off, err = readChunk(data, off); err != nil {
		return err
	}
	m.ServiceMethod = util.SliceByteToString(chunk)

	if chunk, off, err = readChunk(data, off); err != nil {
		return err
	}
	m.Metadata, err = decodeMetadata(chunk)
	if err != nil {
		return err
	}

	if chunk, _, err = readChunk(data, off); err != nil {
		return err
	}
	m.Payload = chunk

	return nil
}

func readChunk(data []byte, off int) ([]byte, int, error) {
	if len(data)-off < 4 {
		return nil, off, ErrMessageCorrupt
	}
	l := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if l < 0 || len(data)-off < l {
		return nil, off, ErrMessageCorrupt
	}
	return data[off : off+l], off + l, nil
}

// Read decodes a freshly allocated message from r.
func Read(r io.Reader) (*Message, error) {
	msg := NewMessage()
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}
