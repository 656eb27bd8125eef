package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"time"
)

// Snapshot 是响应的不可变快照。响应体在平台模型中只能读取一次，
// 因此写入缓存与返回给调用方的副本必须通过 Clone/Response 各自独立。
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Capture 读取并关闭 resp.Body，生成快照。调用后 resp 不应再被读取。
func Capture(resp *http.Response) (*Snapshot, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = data
	}
	return &Snapshot{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now().UTC(),
	}, nil
}

// Clone 返回与原快照互不共享内存的副本。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		StatusCode: s.StatusCode,
		Header:     s.Header.Clone(),
		Body:       append([]byte(nil), s.Body...),
		StoredAt:   s.StoredAt,
	}
}

// Response 生成一个新的 *http.Response，每次调用都拥有独立的 Body reader。
func (s *Snapshot) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

const entryMagic = "OFFLINE-HUB-ENTRY/1"

// EncodeEntry 将 key 与快照序列化为 "元数据头 + HTTP/1.1 响应报文" 的格式，
// 供磁盘驱动直接落盘。
func EncodeEntry(key Key, snapshot *Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, errors.New("nil snapshot")
	}
	buf := &bytes.Buffer{}
	buf.WriteString(entryMagic + "\r\n")

	meta := http.Header{}
	meta.Set("Key-Method", key.Method)
	meta.Set("Key-Url", key.URL)
	meta.Set("Stored-At", snapshot.StoredAt.UTC().Format(time.RFC3339Nano))
	if err := meta.Write(buf); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")

	if err := snapshot.Response(nil).Write(buf); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntry 是 EncodeEntry 的逆过程。
func DecodeEntry(data []byte) (Key, *Snapshot, error) {
	reader := bufio.NewReader(bytes.NewReader(data))
	tp := textproto.NewReader(reader)

	line, err := tp.ReadLine()
	if err != nil {
		return Key{}, nil, fmt.Errorf("read entry magic: %w", err)
	}
	if line != entryMagic {
		return Key{}, nil, fmt.Errorf("unexpected entry magic: %q", line)
	}
	meta, err := tp.ReadMIMEHeader()
	if err != nil {
		return Key{}, nil, fmt.Errorf("read entry meta: %w", err)
	}
	key := Key{Method: meta.Get("Key-Method"), URL: meta.Get("Key-Url")}
	storedAt, _ := time.Parse(time.RFC3339Nano, meta.Get("Stored-At"))

	resp, err := http.ReadResponse(reader, nil)
	if err != nil {
		return Key{}, nil, fmt.Errorf("read response: %w", err)
	}
	snapshot, err := Capture(resp)
	if err != nil {
		return Key{}, nil, err
	}
	snapshot.StoredAt = storedAt
	return key, snapshot, nil
}
