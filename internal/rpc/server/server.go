// Package server implements the RPC Server (spec §4.6): a UNIX-domain
// socket that accepts JSON-RPC connections, reassembles messages from
// chunked reads the way original_source/src/json/jsonrpc_server.c's
// handle_connection does, and dispatches each complete request to the
// Repository Cache / Config Registry.
package server

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/repocache"
	"github.com/henriquetft/ufa/internal/rpc/jsonrpc"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

const readChunkSize = 4096

// JSON-RPC 2.0 standard error codes (spec §4.6).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server owns the listening socket and the repository state every
// connection dispatches against.
type Server struct {
	SocketPath string
	Cache      *repocache.Cache
	Registry   *config.Registry

	listener net.Listener
}

// New returns a Server bound to no socket yet; call Start to listen.
func New(socketPath string, cache *repocache.Cache, registry *config.Registry) *Server {
	return &Server{SocketPath: socketPath, Cache: cache, Registry: registry}
}

// Start removes any stale socket file, binds socketPath, and begins
// accepting connections in a background goroutine. It returns once the
// listener is bound.
func (s *Server) Start() error {
	_ = removeStaleSocket(s.SocketPath)

	l, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return ufaerr.Wrap(ufaerr.Internal, err, "listen on %q", s.SocketPath)
	}
	s.listener = l

	go s.acceptLoop()
	return nil
}

// Stop closes the listener, ending the accept loop.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil {
		return ufaerr.Wrap(ufaerr.Internal, err, "close listener")
	}
	return nil
}

func (s *Server) acceptLoop() {
	log := ufalog.WithComponent("rpc-server")
	log.Info().Str("socket", s.SocketPath).Msg("accepting connections")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Debug().Err(err).Msg("listener closed")
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	log := ufalog.WithComponent("rpc-server")

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msg, outcome := jsonrpc.Parse(buf)
			switch outcome {
			case jsonrpc.Ok:
				log.Debug().Str("method", msg.Method).Msg("dispatching request")
				s.respond(conn, msg)
				buf = nil
			case jsonrpc.Partial:
				// keep accumulating
			case jsonrpc.Invalid, jsonrpc.NoMem:
				log.Warn().Str("outcome", outcomeName(outcome)).Msg("discarding malformed request")
				buf = nil
			}
		}
		if err != nil {
			return
		}
	}
}

func outcomeName(o jsonrpc.Outcome) string {
	switch o {
	case jsonrpc.Invalid:
		return "invalid"
	case jsonrpc.NoMem:
		return "no_mem"
	default:
		return "unknown"
	}
}

func (s *Server) respond(conn net.Conn, req *jsonrpc.Message) {
	resp := s.dispatch(req)
	if resp == nil {
		return // unknown method: silently dropped, matching process_request
	}
	out, err := resp.Encode()
	if err != nil {
		ufalog.WithComponent("rpc-server").Error().Err(err).Msg("encode response")
		return
	}
	if _, err := conn.Write(out); err != nil {
		ufalog.WithComponent("rpc-server").Debug().Err(err).Msg("write response")
	}
}

// removeStaleSocket removes a leftover socket file from a previous run,
// the Go equivalent of jsonrpc_server.c's unlink(SOCKET_PATH) before bind.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ufaerr.New(ufaerr.File, "%q exists and is not a socket", path)
	}
	return os.Remove(path)
}

// dispatch routes a parsed request to its handler (spec §4.6 dispatch
// table), mapping every CORE method original_source's process_request
// recognizes.
func (s *Server) dispatch(req *jsonrpc.Message) *jsonrpc.Message {
	switch req.Method {
	case "listtags":
		return s.handleListTags(req)
	case "gettags":
		return s.handleGetTags(req)
	case "settag":
		return s.handleSetTag(req)
	case "cleartags":
		return s.handleClearTags(req)
	case "inserttag":
		return s.handleInsertTag(req)
	case "unsettag":
		return s.handleUnsetTag(req)
	case "setattr":
		return s.handleSetAttr(req)
	case "unsetattr":
		return s.handleUnsetAttr(req)
	case "getattr":
		return s.handleGetAttr(req)
	case "search":
		return s.handleSearch(req)
	case "listrepos":
		return s.handleListRepos(req)
	case "addrepo":
		return s.handleAddRepo(req)
	case "removerepo":
		return s.handleRemoveRepo(req)
	case "initrepo":
		return s.handleInitRepo(req)
	default:
		return nil
	}
}

func okResult(id string, value interface{}) *jsonrpc.Message {
	return &jsonrpc.Message{ID: id, Result: map[string]interface{}{"value": value}}
}

func errResult(id string, err error) *jsonrpc.Message {
	code := CodeInternalError
	if ufaerr.KindOf(err) == ufaerr.InvalidParams {
		code = CodeInvalidParams
	}
	return &jsonrpc.Message{ID: id, Error: &jsonrpc.RPCError{Code: code, Message: err.Error()}}
}

func missingParam(id, name string) *jsonrpc.Message {
	return errResult(id, ufaerr.New(ufaerr.InvalidParams, "missing parameter %q", name))
}

func (s *Server) handleListTags(req *jsonrpc.Message) *jsonrpc.Message {
	repodir, ok := jsonrpc.GetString(req.Params, "repodir")
	if !ok {
		return missingParam(req.ID, "repodir")
	}
	store, err := s.Cache.Get(repodir)
	if err != nil {
		return errResult(req.ID, err)
	}
	tags, err := store.ListTags()
	if err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, tags)
}

func (s *Server) handleGetTags(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	tags, err := store.GetTags(path)
	if err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, tags)
}

func (s *Server) handleSetTag(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	tag, ok := jsonrpc.GetString(req.Params, "tag")
	if !ok {
		return missingParam(req.ID, "tag")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	if err := store.SetTag(path, tag); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

func (s *Server) handleClearTags(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	if err := store.ClearTags(path); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

func (s *Server) handleInsertTag(req *jsonrpc.Message) *jsonrpc.Message {
	repodir, ok := jsonrpc.GetString(req.Params, "repodir")
	if !ok {
		return missingParam(req.ID, "repodir")
	}
	tag, ok := jsonrpc.GetString(req.Params, "tag")
	if !ok {
		return missingParam(req.ID, "tag")
	}
	store, err := s.Cache.Get(repodir)
	if err != nil {
		return errResult(req.ID, err)
	}
	id, err := store.InsertTag(tag)
	if err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, id)
}

func (s *Server) handleUnsetTag(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	tag, ok := jsonrpc.GetString(req.Params, "tag")
	if !ok {
		return missingParam(req.ID, "tag")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	if err := store.UnsetTag(path, tag); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

func (s *Server) handleSetAttr(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	attr, ok := jsonrpc.GetString(req.Params, "attribute")
	if !ok {
		return missingParam(req.ID, "attribute")
	}
	value, ok := jsonrpc.GetString(req.Params, "value")
	if !ok {
		return missingParam(req.ID, "value")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	if err := store.SetAttr(path, attr, value); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

func (s *Server) handleUnsetAttr(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	attr, ok := jsonrpc.GetString(req.Params, "attribute")
	if !ok {
		return missingParam(req.ID, "attribute")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	if err := store.UnsetAttr(path, attr); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

func (s *Server) handleGetAttr(req *jsonrpc.Message) *jsonrpc.Message {
	path, ok := jsonrpc.GetString(req.Params, "filepath")
	if !ok {
		return missingParam(req.ID, "filepath")
	}
	store, err := s.Cache.Get(filepath.Dir(path))
	if err != nil {
		return errResult(req.ID, err)
	}
	attrs, err := store.GetAttrs(path)
	if err != nil {
		return errResult(req.ID, err)
	}
	asMap := make(map[string]string, len(attrs))
	for _, a := range attrs {
		asMap[a.Name] = a.Value
	}
	return okResult(req.ID, asMap)
}

func (s *Server) handleSearch(req *jsonrpc.Message) *jsonrpc.Message {
	tags, _ := jsonrpc.GetStringSlice(req.Params, "tags")
	repoDirs, _ := jsonrpc.GetStringSlice(req.Params, "repo_dirs")
	includeConfig, _ := jsonrpc.GetBool(req.Params, "include_repo_from_config")

	filterObjs, _ := jsonrpc.GetObjectSlice(req.Params, "filter_attrs")
	filters := make([]repo.AttrFilter, 0, len(filterObjs))
	for _, obj := range filterObjs {
		name, _ := jsonrpc.GetString(obj, "attribute")
		mode := repo.Equal
		if modeVal, ok := obj["matchmode"]; ok {
			if n, ok := modeVal.(json.Number); ok {
				if iv, err := n.Int64(); err == nil && iv == int64(repo.Wildcard) {
					mode = repo.Wildcard
				}
			}
		}
		filter := repo.AttrFilter{Name: name, Mode: mode}
		if value, ok := jsonrpc.GetString(obj, "value"); ok {
			filter.Value = &value
		}
		filters = append(filters, filter)
	}

	results, err := s.Cache.Search(s.Registry, repoDirs, filters, tags, includeConfig)
	if err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, results)
}

// handleListRepos backs ufactl list: the configured repository
// directories, not reloaded from disk unless the caller asks for it.
func (s *Server) handleListRepos(req *jsonrpc.Message) *jsonrpc.Message {
	reload, _ := jsonrpc.GetBool(req.Params, "reload")
	dirs, err := s.Registry.List(reload)
	if err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, dirs)
}

// handleAddRepo backs ufactl add: registers an already-initialized
// repository directory in the Config Registry.
func (s *Server) handleAddRepo(req *jsonrpc.Message) *jsonrpc.Message {
	dir, ok := jsonrpc.GetString(req.Params, "repodir")
	if !ok {
		return missingParam(req.ID, "repodir")
	}
	if err := s.Registry.Add(dir); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

// handleRemoveRepo backs ufactl remove: it only unregisters the
// directory from the Config Registry, leaving the repository's own
// marker file and database untouched (spec §4.3).
func (s *Server) handleRemoveRepo(req *jsonrpc.Message) *jsonrpc.Message {
	dir, ok := jsonrpc.GetString(req.Params, "repodir")
	if !ok {
		return missingParam(req.ID, "repodir")
	}
	if err := s.Registry.Remove(dir); err != nil {
		return errResult(req.ID, err)
	}
	return okResult(req.ID, true)
}

// handleInitRepo backs ufactl init: creates the repository's marker
// file and database via repo.Init, then (unless the caller opts out)
// registers it in the Config Registry the way ufactl.c's cmd_init does.
func (s *Server) handleInitRepo(req *jsonrpc.Message) *jsonrpc.Message {
	dir, ok := jsonrpc.GetString(req.Params, "repodir")
	if !ok {
		return missingParam(req.ID, "repodir")
	}
	register, hasRegister := jsonrpc.GetBool(req.Params, "register")
	if !hasRegister {
		register = true
	}

	if _, err := s.Cache.Get(dir); err != nil {
		return errResult(req.ID, err)
	}

	if register {
		if err := s.Registry.Add(dir); err != nil {
			return errResult(req.ID, err)
		}
	}
	return okResult(req.ID, true)
}
