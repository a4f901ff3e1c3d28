package util

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
)

var (
	spWriter sync.Pool
	spReader sync.Pool
	spBuffer sync.Pool
)

func init() {
	spBuffer = sync.Pool{New: func() interface{} {
		return new(bytes.Buffer)
	}}
}

// Unzip 解压 gzip 数据
func Unzip(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(data)

	var gr *gzip.Reader
	if r := spReader.Get(); r != nil {
		gr = r.(*gzip.Reader)
		if err := gr.Reset(buf); err != nil {
			spReader.Put(gr)
			return nil, err
		}
	} else {
		var err error
		gr, err = gzip.NewReader(buf)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		gr.Close()
		spReader.Put(gr)
	}()

	return io.ReadAll(gr)
}

// Zip 使用 gzip 压缩数据
func Zip(data []byte) ([]byte, error) {
	buf := spBuffer.Get().(*bytes.Buffer)
	buf.Reset()
	defer spBuffer.Put(buf)

	var w *gzip.Writer
	if v := spWriter.Get(); v != nil {
		w = v.(*gzip.Writer)
		w.Reset(buf)
	} else {
		w = gzip.NewWriter(buf)
	}
	defer spWriter.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// buf goes back to the pool, so hand out a copy.
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
