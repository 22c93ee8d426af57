package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewMockForTests returns a Store backed by an in-memory fake of the S3 REST
// API. It covers the operations the Store issues and nothing more.
func NewMockForTests() *Store {
	store, err := New(context.Background(), Config{
		Bucket:          "mock-bucket",
		Region:          defaultRegion,
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      NewFakeS3(0),
	})
	if err != nil {
		panic(fmt.Errorf("mock s3: %w", err))
	}
	return store
}

// FakeS3 is an http client that answers S3 REST calls from memory.
type FakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	// Requests counts calls per method, e.g. "PUT".
	Requests map[string]int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// NewFakeS3 returns an empty fake. pageSize bounds ListObjectsV2 pages (default 1000).
func NewFakeS3(pageSize int) *FakeS3 {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &FakeS3{objects: make(map[string]fakeObject), pageSize: pageSize, Requests: make(map[string]int)}
}

// Do implements aws.HTTPClient.
func (f *FakeS3) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests[req.Method]++

	// Path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()

	switch {
	case req.Method == http.MethodGet && query.Get("list-type") == "2":
		return f.list(req, query.Get("prefix"), query.Get("continuation-token"))
	case req.Method == http.MethodPut:
		return f.put(req, key)
	case req.Method == http.MethodGet || req.Method == http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return respond(req, http.StatusNotFound, nil, nil), nil
			}
			return errorResponse(req, http.StatusNotFound, "NoSuchKey"), nil
		}
		header := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
			"Etag":           {`"etag"`},
		}
		if obj.contentType != "" {
			header.Set("Content-Type", obj.contentType)
		}
		for k, v := range obj.metadata {
			header.Set("X-Amz-Meta-"+k, v)
		}
		var body []byte
		if req.Method == http.MethodGet {
			body = bytes.Clone(obj.body)
		}
		return respond(req, http.StatusOK, header, body), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(req, http.StatusNoContent, nil, nil), nil
	}
	return respond(req, http.StatusNotImplemented, nil, nil), nil
}

func (f *FakeS3) put(req *http.Request, key string) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
		if body, err = decodeAWSChunked(body); err != nil {
			return errorResponse(req, http.StatusBadRequest, "IncompleteBody"), nil
		}
	}
	if _, exists := f.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
		return errorResponse(req, http.StatusPreconditionFailed, "PreconditionFailed"), nil
	}
	meta := map[string]string{}
	for name, values := range req.Header {
		if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			meta[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	f.objects[key] = fakeObject{
		body:        body,
		contentType: req.Header.Get("Content-Type"),
		metadata:    meta,
		modified:    time.Now().UTC().Truncate(time.Second),
	}
	return respond(req, http.StatusOK, http.Header{"Etag": {`"etag"`}}, nil), nil
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	KeyCount              int           `xml:"KeyCount"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (f *FakeS3) list(req *http.Request, prefix, after string) (*http.Response, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var result listResult
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		result.IsTruncated = true
		result.NextContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		obj := f.objects[k]
		result.Contents = append(result.Contents, listContent{
			Key:          k,
			Size:         len(obj.body),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	result.KeyCount = len(result.Contents)
	body, err := xml.Marshal(result)
	if err != nil {
		return nil, err
	}
	return respond(req, http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, body), nil
}

// decodeAWSChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n"
// repeated until a zero-length chunk, followed by optional trailers.
func decodeAWSChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeField := strings.TrimSpace(line)
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeField, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}

func errorResponse(req *http.Request, status int, code string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, http.StatusText(status))
	return respond(req, status, http.Header{"Content-Type": {"application/xml"}}, []byte(body))
}

func respond(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
