// rpc/rpc.go
package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
)

// Server manages the admin RPC listener used by internal ops tooling.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins serving RPC connections.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("stopping RPC server")
		s.listener.Close()
	}
}

// StatsService exposes server counters over net/rpc. Methods follow the
// net/rpc signature rules: exported args, pointer reply, error return.
type StatsService struct {
	stats *persistence.StatsStore
}

func NewStatsService(stats *persistence.StatsStore) *StatsService {
	return &StatsService{stats: stats}
}

// Register exposes the service under the "Stats" name clients dial.
func Register(service *StatsService) error {
	return rpc.RegisterName("Stats", service)
}

type ServerStatsArgs struct{}

type ServerStatsReply struct {
	Stats models.ServerStats
}

func (ss *StatsService) GetServerStats(args *ServerStatsArgs, reply *ServerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := ss.stats.ServerStats(ctx)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}
