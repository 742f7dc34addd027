// Command server exposes the query engine over HTTP JSON and gRPC. Both
// transports share the same handlers; gRPC uses a JSON codec and a manual
// service descriptor, so no protobuf toolchain is required.
//
// Clients may pass a session ID to keep temporary tables alive across
// requests; requests without one get a fresh session whose ID is returned
// in the response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/sheetsql/sheetsql/internal/cache"
	"github.com/sheetsql/sheetsql/internal/config"
	"github.com/sheetsql/sheetsql/internal/engine"
	"github.com/sheetsql/sheetsql/internal/provider"
	"github.com/sheetsql/sheetsql/internal/storage"
)

var (
	flagConfig  = flag.String("config", "", "Path to YAML config file (optional)")
	flagData    = flag.String("data", "", "Directory of CSV tables (overrides config)")
	flagCache   = flag.String("cache", "", "SQLite result cache file (overrides config)")
	flagRefresh = flag.String("refresh", "", "Cron spec for provider refresh (overrides config)")
	flagHTTP    = flag.String("http", "", "HTTP listen address (overrides config, empty uses config)")
	flagGRPC    = flag.String("grpc", "", "gRPC listen address (overrides config, empty uses config)")
	flagPeers   = flag.String("peers", "", "Comma-separated gRPC peer addresses for federated queries (optional)")
	flagVerbose = flag.Bool("v", false, "Verbose logging")
)

// Wire types shared by the HTTP and gRPC surfaces.
type queryRequest struct {
	Session string `json:"session,omitempty"`
	SQL     string `json:"sql"`
}

type queryResponse struct {
	Session  string           `json:"session"`
	SQL      string           `json:"sql"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Error    string           `json:"error,omitempty"`
	Duration string           `json:"duration"`
	Count    int              `json:"count"`
}

type tablesRequest struct {
	Session string `json:"session,omitempty"`
}

type tablesResponse struct {
	Tables []string `json:"tables"`
	Temps  []string `json:"temps,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// gRPC JSON codec
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// gRPC service interface and descriptors (manual, no protobuf)
type SheetSQLServer interface {
	Query(context.Context, *queryRequest) (*queryResponse, error)
	Tables(context.Context, *tablesRequest) (*tablesResponse, error)
}

func registerSheetSQLServer(s *grpc.Server, srv SheetSQLServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "sheetsql.SheetSQL",
		HandlerType: (*SheetSQLServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Query", Handler: _SheetSQL_Query_Handler},
			{MethodName: "Tables", Handler: _SheetSQL_Tables_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "sheetsql",
	}, srv)
}

func _SheetSQL_Query_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(queryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SheetSQLServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sheetsql.SheetSQL/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SheetSQLServer).Query(ctx, req.(*queryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SheetSQL_Tables_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(tablesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SheetSQLServer).Tables(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sheetsql.SheetSQL/Tables"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SheetSQLServer).Tables(ctx, req.(*tablesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server state
type server struct {
	src   storage.Provider
	dir   *provider.DirProvider
	peers []string

	mu       sync.Mutex
	sessions map[string]*storage.Session
}

func newServer(src storage.Provider, dir *provider.DirProvider) *server {
	return &server{
		src:      src,
		dir:      dir,
		sessions: make(map[string]*storage.Session),
	}
}

// session returns the existing session for id, or a fresh one when id is
// empty or unknown. Unknown IDs get a new session rather than an error so
// clients survive a server restart.
func (s *server) session(id string) *storage.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return sess
		}
	}
	sess := storage.NewSession(s.src)
	s.sessions[sess.ID] = sess
	return sess
}

// SheetSQLServer implementation
func (s *server) Query(ctx context.Context, req *queryRequest) (*queryResponse, error) {
	start := time.Now()
	sess := s.session(req.Session)
	fail := func(err error) (*queryResponse, error) {
		return &queryResponse{
			Session: sess.ID, SQL: req.SQL,
			Error: err.Error(), Duration: time.Since(start).String(),
		}, nil
	}

	stmt, err := engine.Parse(req.SQL)
	if err != nil {
		return fail(err)
	}
	if sel, ok := stmt.(*engine.Select); ok && sel.OutputPath != "" {
		return fail(fmt.Errorf("output redirection is not available over the network"))
	}
	result, err := engine.Execute(ctx, sess, stmt)
	if err != nil {
		return fail(err)
	}

	cols := result.ColNames()
	rows := make([]map[string]any, len(result.Rows))
	for i, r := range result.Rows {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			m[c] = r[j]
		}
		rows[i] = m
	}
	return &queryResponse{
		Session:  sess.ID,
		SQL:      req.SQL,
		Columns:  cols,
		Rows:     rows,
		Duration: time.Since(start).String(),
		Count:    len(rows),
	}, nil
}

func (s *server) Tables(ctx context.Context, req *tablesRequest) (*tablesResponse, error) {
	names, err := s.dir.List()
	if err != nil {
		return &tablesResponse{Error: err.Error()}, nil
	}
	resp := &tablesResponse{Tables: names}
	if req.Session != "" {
		resp.Temps = s.session(req.Session).ListTemp()
	}
	return resp, nil
}

// HTTP handlers
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Query(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	resp, _ := s.Tables(r.Context(), &tablesRequest{Session: r.URL.Query().Get("session")})
	writeJSON(w, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"ok":       true,
		"time":     time.Now().Format(time.RFC3339),
		"sessions": sessions,
		"peers":    s.peers,
	})
}

// Federated query: run locally, then on every peer via gRPC, and concat
// rows when the column sets agree.
func (s *server) handleFederatedQuery(w http.ResponseWriter, r *http.Request) {
	if len(s.peers) == 0 {
		http.Error(w, "No peers configured", http.StatusBadRequest)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	local, _ := s.Query(r.Context(), &req)
	if local.Error != "" {
		writeJSON(w, local)
		return
	}
	cols := append([]string{}, local.Columns...)
	rows := append([]map[string]any{}, local.Rows...)

	type peerRes struct {
		rows []map[string]any
		err  error
	}
	ch := make(chan peerRes, len(s.peers))
	var wg sync.WaitGroup
	for _, addr := range s.peers {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			out, err := grpcQuery(r.Context(), addr, &queryRequest{SQL: req.SQL})
			if err != nil {
				ch <- peerRes{nil, fmt.Errorf("peer %s: %w", addr, err)}
				return
			}
			if !sameColumns(cols, out.Columns) {
				ch <- peerRes{nil, fmt.Errorf("peer %s: columns mismatch", addr)}
				return
			}
			ch <- peerRes{out.Rows, nil}
		}(strings.TrimSpace(addr))
	}
	wg.Wait()
	close(ch)
	for res := range ch {
		if res.err != nil {
			if *flagVerbose {
				log.Printf("federation: %v", res.err)
			}
			continue
		}
		rows = append(rows, res.rows...)
	}
	writeJSON(w, &queryResponse{
		Session: local.Session,
		SQL:     req.SQL,
		Columns: cols,
		Rows:    rows,
		Count:   len(rows),
	})
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// gRPC JSON client helper
func grpcQuery(ctx context.Context, addr string, req *queryRequest) (*queryResponse, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	var resp queryResponse
	if err := conn.Invoke(ctx, "/sheetsql.SheetSQL/Query", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("%s", resp.Error)
	}
	return &resp, nil
}

func main() {
	flag.Parse()

	cfg, err := config.LoadOrDefault(*flagConfig)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *flagData != "" {
		cfg.DataDir = *flagData
	}
	if *flagCache != "" {
		cfg.CachePath = *flagCache
	}
	if *flagRefresh != "" {
		cfg.RefreshSpec = *flagRefresh
	}
	if *flagHTTP != "" {
		cfg.ListenHTTP = *flagHTTP
	}
	if *flagGRPC != "" {
		cfg.ListenGRPC = *flagGRPC
	}

	dir, err := provider.NewDirProvider(cfg.DataDir)
	if err != nil {
		log.Fatalf("open error: %v", err)
	}
	var src storage.Provider = dir
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath, dir)
		if err != nil {
			log.Fatalf("cache error: %v", err)
		}
		defer store.Close()
		src = store
	}
	if cfg.RefreshSpec != "" {
		ref, err := provider.NewRefresher(dir, cfg.RefreshSpec)
		if err != nil {
			log.Fatalf("refresh error: %v", err)
		}
		ref.Start()
		defer ref.Stop()
	}

	srv := newServer(src, dir)
	if p := strings.TrimSpace(*flagPeers); p != "" {
		srv.peers = strings.Split(p, ",")
	}

	encoding.RegisterCodec(jsonCodec{})

	if cfg.ListenGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", cfg.ListenGRPC)
			if err != nil {
				log.Fatalf("gRPC listen error: %v", err)
			}
			gs := grpc.NewServer()
			registerSheetSQLServer(gs, srv)
			log.Printf("gRPC listening on %s", cfg.ListenGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Fatalf("gRPC serve error: %v", err)
			}
		}()
	}

	if cfg.ListenHTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/query", srv.handleQuery)
		mux.HandleFunc("/api/tables", srv.handleTables)
		mux.HandleFunc("/api/status", srv.handleStatus)
		mux.HandleFunc("/api/federated/query", srv.handleFederatedQuery)
		log.Printf("HTTP listening on %s", cfg.ListenHTTP)
		if err := http.ListenAndServe(cfg.ListenHTTP, mux); err != nil {
			log.Fatalf("HTTP serve error: %v", err)
		}
	} else {
		select {}
	}
}
