// Package rpctransport implements the remote half of the disk capability
// set: chunk I/O over plain HTTP PUT/GET, and xl.meta I/O over a
// small JSON-RPC envelope, both against a disk-server's "/_internal/"
// surface. Remote satisfies disk.Capability identically to disk.Local so
// fanout never branches on locality.
package rpctransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/xlmeta"
)

const (
	chunkPath = "/_internal/chunk"
	rpcPath = "/_internal/rpc"

	defaultTimeout = 5 * time.Minute
)

// Remote is a disk.Capability backed by HTTP calls to one disk-server.
type Remote struct {
	endpoint string // host:port this disk's server listens on
	diskPath string // disk path on the remote side, sent as X-Disk-Path
	client *http.Client
}

// New dials nothing eagerly; it just configures the client with
// TCP_NODELAY and a long request timeout suited to large chunk transfers.
func New(endpoint, diskPath string) *Remote {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &Remote{
		endpoint: endpoint,
		diskPath: diskPath,
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DialContext: nodelayDialContext(dialer),
				MaxIdleConnsPerHost: 32,
			},
		},
	}
}

func nodelayDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		return conn, nil
	}
}

func (r *Remote) Endpoint() string { return r.endpoint }
func (r *Remote) Path() string { return r.diskPath }

func (r *Remote) chunkURL(objectPath string, index int) string {
	return fmt.Sprintf("http://%s%s?object=%s&index=%d", r.endpoint, chunkPath, objectPath, index)
}

// WriteChunk PUTs the shard with the identifying headers the disk server
// uses to route the write to the right object directory.
func (r *Remote) WriteChunk(objectPath string, index int, data []byte) error {
	const op = "rpctransport.WriteChunk"
	req, err := http.NewRequest(http.MethodPut, r.chunkURL(objectPath, index), bytes.NewReader(data))
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	r.setChunkHeaders(req, objectPath, index, len(data))
	resp, err := r.client.Do(req)
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errs.New(errs.RPC, op, fmt.Errorf("remote write: HTTP %d", resp.StatusCode))
	}
	return nil
}

func (r *Remote) ReadChunk(objectPath string, index int) ([]byte, error) {
	const op = "rpctransport.ReadChunk"
	req, err := http.NewRequest(http.MethodGet, r.chunkURL(objectPath, index), nil)
	if err != nil {
		return nil, errs.New(errs.RPC, op, err)
	}
	r.setChunkHeaders(req, objectPath, index, 0)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.RPC, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.New(errs.NotFound, op, fmt.Errorf("chunk not found"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.RPC, op, fmt.Errorf("remote read: HTTP %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.RPC, op, err)
	}
	return data, nil
}

func (r *Remote) DeleteChunk(objectPath string, index int) error {
	const op = "rpctransport.DeleteChunk"
	req, err := http.NewRequest(http.MethodDelete, r.chunkURL(objectPath, index), nil)
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	r.setChunkHeaders(req, objectPath, index, 0)
	resp, err := r.client.Do(req)
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return errs.New(errs.RPC, op, fmt.Errorf("remote delete: HTTP %d", resp.StatusCode))
	}
	return nil
}

func (r *Remote) setChunkHeaders(req *http.Request, objectPath string, index, size int) {
	req.Header.Set("X-Object-Path", objectPath)
	req.Header.Set("X-Chunk-Index", fmt.Sprintf("%d", index))
	req.Header.Set("X-Disk-Path", r.diskPath)
	if size > 0 {
		req.Header.Set("Content-Length", fmt.Sprintf("%d", size))
	}
}

// rpcRequest/rpcResponse implement the JSON-RPC envelope used for xl.meta
// operations, whose small fixed-shape payload doesn't warrant a bespoke
// wire format the way chunk bytes do.
type rpcRequest struct {
	Method string `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Kind string `json:"kind"`
	Message string `json:"message"`
}

func (r *Remote) call(method string, params interface{}, result interface{}) error {
	const op = "rpctransport.call"
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	body, err := json.Marshal(rpcRequest{Method: method, Params: paramsJSON})
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	url := fmt.Sprintf("http://%s%s", r.endpoint, rpcPath)
	resp, err := r.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return errs.New(errs.RPC, op, err)
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errs.New(errs.RPC, op, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Kind == "not_found" {
			return errs.New(errs.NotFound, op, fmt.Errorf("%s", rpcResp.Error.Message))
		}
		return errs.New(errs.RPC, op, fmt.Errorf("%s", rpcResp.Error.Message))
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errs.New(errs.RPC, op, err)
		}
	}
	return nil
}

type readMetaParams struct {
	ObjectPath string `json:"object_path"`
}

type writeMetaParams struct {
	ObjectPath string `json:"object_path"`
	Meta json.RawMessage `json:"meta"`
}

// ReadMeta calls the storage.readXlMeta RPC method.
func (r *Remote) ReadMeta(objectPath string) (*xlmeta.XLMeta, error) {
	var raw json.RawMessage
	if err := r.call("storage.readXlMeta", readMetaParams{ObjectPath: objectPath}, &raw); err != nil {
		return nil, err
	}
	return xlmeta.Unmarshal(raw)
}

// WriteMeta calls the storage.writeXlMeta RPC method.
func (r *Remote) WriteMeta(objectPath string, meta *xlmeta.XLMeta) error {
	buf, err := xlmeta.Marshal(meta)
	if err != nil {
		return err
	}
	return r.call("storage.writeXlMeta", writeMetaParams{ObjectPath: objectPath, Meta: buf}, nil)
}

// DeleteMeta calls the storage.deleteXlMeta RPC method.
func (r *Remote) DeleteMeta(objectPath string) error {
	return r.call("storage.deleteXlMeta", readMetaParams{ObjectPath: objectPath}, nil)
}

var _ disk.Capability = (*Remote)(nil)
