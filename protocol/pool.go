package protocol

import "sync"

var msgPool = sync.Pool{
	New: func() any {
		header := Header([headerLen]byte{})
		header[0] = magicNumber

		return &Message{
			Header: &header,
		}
	},
}

// GetPoolMsg returns a reset message from the pool.
func GetPoolMsg() *Message {
	return msgPool.Get().(*Message)
}

// FreeMsg resets msg and returns it to the pool. msg must not be used afterwards.
func FreeMsg(msg *Message) {
	if msg == nil {
		return
	}
	msg.Reset()
	msgPool.Put(msg)
}
