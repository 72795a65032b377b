// Package client implements the RPC Client Façade (spec §4.7): typed,
// blocking wrappers over the JSON-RPC wire protocol, used by every cmd/
// CLI tool the way original_source/src/json/jsonrpc_api.c's
// ufa_jsonrpc_api_* functions are used by src/tools/*.c.
package client

import (
	"encoding/json"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/rpc/jsonrpc"
	"github.com/henriquetft/ufa/internal/ufaerr"
)

const readBufferSize = 4096

// socketFileName is the daemon's listening socket, relative to the
// Config Registry's config directory. original_source/src/json/
// jsonrpc_server.h instead hardcodes a single fixed path
// (SOCKET_PATH="/tmp/ufarpc_unix_sock.server"), which only ever
// supports one daemon per machine; keying the socket off the config
// directory instead lets each user (and, in tests, each temp config
// root) run its own daemon.
const socketFileName = "ufad.sock"

// DefaultSocketPath returns the socket path every cmd/* tool and cmd/ufad
// agree on for a given Config Registry.
func DefaultSocketPath(reg *config.Registry) (string, error) {
	cfgDir, err := reg.ConfigDirPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, socketFileName), nil
}

// Client holds one connection to the daemon's JSON-RPC socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon's UNIX-domain socket at socketPath. A
// connection failure is reported as Unavailable (spec §7): the daemon is
// down, not merely misbehaving.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Unavailable, err, "cannot reach ufad at %q", socketPath)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends a request built from method and params, then blocks until a
// complete response is parsed, matching jsonrpc_api.c's request_jsonrpc:
// read in chunks and keep feeding the parser until it stops asking for
// more (Partial).
func (c *Client) call(method string, params map[string]interface{}) (*jsonrpc.Message, error) {
	req := &jsonrpc.Message{
		Version: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
	out, err := req.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(out); err != nil {
		return nil, ufaerr.Wrap(ufaerr.Unavailable, err, "write request")
	}

	var buf []byte
	chunk := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msg, outcome := jsonrpc.Parse(buf)
			switch outcome {
			case jsonrpc.Ok:
				if msg.Error != nil {
					return nil, ufaerr.New(errKindForCode(msg.Error.Code), "%s", msg.Error.Message)
				}
				return msg, nil
			case jsonrpc.Partial:
				// keep reading
			case jsonrpc.Invalid, jsonrpc.NoMem:
				return nil, ufaerr.New(ufaerr.Internal, "malformed response from daemon")
			}
		}
		if err != nil {
			return nil, ufaerr.Wrap(ufaerr.Unavailable, err, "read response")
		}
	}
}

func errKindForCode(code int) ufaerr.Kind {
	if code == -32602 {
		return ufaerr.InvalidParams
	}
	return ufaerr.Internal
}

// ListTags returns every tag defined in the repository at repodir.
func (c *Client) ListTags(repodir string) ([]string, error) {
	resp, err := c.call("listtags", map[string]interface{}{"repodir": repodir})
	if err != nil {
		return nil, err
	}
	return valueStringSlice(resp)
}

// GetTags returns the tags assigned to filepath.
func (c *Client) GetTags(filepath string) ([]string, error) {
	resp, err := c.call("gettags", map[string]interface{}{"filepath": filepath})
	if err != nil {
		return nil, err
	}
	return valueStringSlice(resp)
}

// SetTag assigns tag to filepath, creating it if necessary.
func (c *Client) SetTag(filepath, tag string) error {
	_, err := c.call("settag", map[string]interface{}{"filepath": filepath, "tag": tag})
	return err
}

// ClearTags removes every tag assigned to filepath.
func (c *Client) ClearTags(filepath string) error {
	_, err := c.call("cleartags", map[string]interface{}{"filepath": filepath})
	return err
}

// InsertTag creates tag in the repository at repodir without assigning it
// to any file, returning its id.
func (c *Client) InsertTag(repodir, tag string) (int64, error) {
	resp, err := c.call("inserttag", map[string]interface{}{"repodir": repodir, "tag": tag})
	if err != nil {
		return 0, err
	}
	return valueInt64(resp)
}

// UnsetTag removes tag from filepath.
func (c *Client) UnsetTag(filepath, tag string) error {
	_, err := c.call("unsettag", map[string]interface{}{"filepath": filepath, "tag": tag})
	return err
}

// SetAttr sets attribute=value on filepath.
func (c *Client) SetAttr(filepath, attribute, value string) error {
	_, err := c.call("setattr", map[string]interface{}{
		"filepath": filepath, "attribute": attribute, "value": value,
	})
	return err
}

// UnsetAttr removes attribute from filepath.
func (c *Client) UnsetAttr(filepath, attribute string) error {
	_, err := c.call("unsetattr", map[string]interface{}{"filepath": filepath, "attribute": attribute})
	return err
}

// GetAttr returns every name/value attribute assigned to filepath.
func (c *Client) GetAttr(filepath string) (map[string]string, error) {
	resp, err := c.call("getattr", map[string]interface{}{"filepath": filepath})
	if err != nil {
		return nil, err
	}
	value, _ := resp.Result["value"].(map[string]interface{})
	out := make(map[string]string, len(value))
	for k, v := range value {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// SearchRequest bundles search's optional filters (spec §4.1 Search).
type SearchRequest struct {
	RepoDirs           []string
	FilterAttrs        []repo.AttrFilter
	Tags               []string
	IncludeConfigRepos bool
}

// Search runs a cross-repository tag/attribute search.
func (c *Client) Search(req SearchRequest) ([]string, error) {
	filterAttrs := make([]interface{}, 0, len(req.FilterAttrs))
	for _, f := range req.FilterAttrs {
		obj := map[string]interface{}{"attribute": f.Name, "matchmode": int(f.Mode)}
		if f.Value != nil {
			obj["value"] = *f.Value
		}
		filterAttrs = append(filterAttrs, obj)
	}

	resp, err := c.call("search", map[string]interface{}{
		"repo_dirs":                 toInterfaceSlice(req.RepoDirs),
		"tags":                      toInterfaceSlice(req.Tags),
		"filter_attrs":              filterAttrs,
		"include_repo_from_config": req.IncludeConfigRepos,
	})
	if err != nil {
		return nil, err
	}
	return valueStringSlice(resp)
}

// ListRepos returns the Config Registry's repository directories,
// re-reading the dirs-file from disk first when reload is set.
func (c *Client) ListRepos(reload bool) ([]string, error) {
	resp, err := c.call("listrepos", map[string]interface{}{"reload": reload})
	if err != nil {
		return nil, err
	}
	return valueStringSlice(resp)
}

// AddRepo registers an already-initialized repository directory.
func (c *Client) AddRepo(repodir string) error {
	_, err := c.call("addrepo", map[string]interface{}{"repodir": repodir})
	return err
}

// RemoveRepo unregisters repodir from the Config Registry without
// touching the repository itself.
func (c *Client) RemoveRepo(repodir string) error {
	_, err := c.call("removerepo", map[string]interface{}{"repodir": repodir})
	return err
}

// InitRepo creates repodir's marker file and database, registering it in
// the Config Registry unless register is false.
func (c *Client) InitRepo(repodir string, register bool) error {
	_, err := c.call("initrepo", map[string]interface{}{"repodir": repodir, "register": register})
	return err
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func valueStringSlice(resp *jsonrpc.Message) ([]string, error) {
	raw, ok := resp.Result["value"].([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func valueInt64(resp *jsonrpc.Message) (int64, error) {
	n, ok := resp.Result["value"].(json.Number)
	if !ok {
		return 0, ufaerr.New(ufaerr.Internal, "unexpected type for inserttag result")
	}
	return n.Int64()
}
