package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"satchel/internal/api"
	"satchel/internal/daemon"
	"satchel/internal/logging"
	"satchel/internal/queue"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. shutdown is
// invoked when a client requests daemon stop.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, store *queue.Store, shutdown func(), logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "ipc-server")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, store: store, shutdown: shutdown, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Satchel", svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "CLI commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	store    *queue.Store
	shutdown func()
	logger   *slog.Logger
	ctx      context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	stats := map[string]int{
		string(queue.StatusPending):    status.Queue.Pending,
		string(queue.StatusDelivering): status.Queue.Delivering,
		string(queue.StatusFailed):     status.Queue.Failed,
	}
	*resp = StatusResponse{
		Running:     status.Running,
		PID:         status.PID,
		Online:      status.Online,
		QueueDBPath: status.QueueDBPath,
		LockPath:    status.LockFilePath,
		Inflight:    status.Inflight,
		QueueStats:  stats,
	}
	return nil
}

func (s *service) Summary(_ SummaryRequest, resp *SummaryResponse) error {
	summary, err := s.daemon.SaveService().Summary(s.ctx)
	if err != nil {
		return err
	}
	resp.Summary = summary
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	var statuses []queue.Status
	for _, raw := range req.Statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}
	entries, err := s.daemon.SaveService().List(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	entry, err := s.daemon.SaveService().Submit(s.ctx, req.Capture)
	if err != nil {
		if reason := api.RejectionReason(err); reason != "" {
			resp.Result = api.SubmitResponse{Accepted: false, Reason: reason}
			return nil
		}
		if errors.Is(err, queue.ErrCapacityExceeded) {
			resp.Result = api.SubmitResponse{Accepted: false, Reason: "queue_full"}
			return nil
		}
		return err
	}
	resp.Result = api.SubmitResponse{Accepted: true, QueueID: entry.ID}
	return nil
}

func (s *service) Retry(req RetryRequest, resp *RetryResponse) error {
	if err := s.daemon.SaveService().Retry(s.ctx, req.ID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			resp.Retrying = false
			return nil
		}
		return err
	}
	resp.Retrying = true
	return nil
}

func (s *service) Discard(req DiscardRequest, resp *DiscardResponse) error {
	if err := s.daemon.SaveService().Discard(s.ctx, req.ID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			resp.Discarded = false
			return nil
		}
		return err
	}
	resp.Discarded = true
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	health, err := s.store.CheckHealth(s.ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	*resp = HealthResponse{
		DBPath:           health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		TableExists:      health.TableExists,
		IntegrityCheck:   health.IntegrityCheck,
		TotalEntries:     health.TotalEntries,
		Error:            health.Error,
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	if !sent {
		resp.Message = "Notifications are not configured; set notifications.ntfy_topic"
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("shutdown requested over ipc")
	if s.shutdown != nil {
		go s.shutdown()
	}
	resp.Stopping = true
	return nil
}
