package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/Heaven664/messenger-backend/internal/config"
	"github.com/Heaven664/messenger-backend/internal/connection"
	"github.com/Heaven664/messenger-backend/internal/fanout"
	"github.com/Heaven664/messenger-backend/internal/protocol"
)

// Server WebTransport 会话网关
type Server struct {
	cfg              *config.Config
	logger           *slog.Logger
	connMgr          *connection.Manager
	handler          *protocol.Handler
	presence         protocol.PresenceAPI
	subscriber       *fanout.EventSubscriber
	wtServer         *webtransport.Server
	heartbeatChecker *connection.HeartbeatChecker
	wg               sync.WaitGroup
}

// New 创建网关服务器
func New(
	cfg *config.Config,
	connMgr *connection.Manager,
	handler *protocol.Handler,
	presence protocol.PresenceAPI,
	subscriber *fanout.EventSubscriber,
) *Server {
	return &Server{
		cfg:        cfg,
		logger:     slog.Default(),
		connMgr:    connMgr,
		handler:    handler,
		presence:   presence,
		subscriber: subscriber,
	}
}

// Start 启动服务器（阻塞）
func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:        s.cfg.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:       s.cfg.QUIC.KeepAlivePeriod,
		MaxIncomingStreams:    s.cfg.QUIC.MaxIncomingStreams,
		MaxIncomingUniStreams: s.cfg.QUIC.MaxIncomingUniStreams,
		Allow0RTT:             s.cfg.QUIC.Allow0RTT,
		EnableDatagrams:       true, // WebTransport 需要启用数据报支持
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:       s.cfg.Server.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: quicConfig,
		},
		CheckOrigin: func(r *http.Request) bool {
			// TODO: 生产环境应该检查 Origin
			return true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webtransport", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session)
	})
	s.wtServer.H3.Handler = mux

	// 订阅本节点的下行事件
	if err := s.subscriber.Start(ctx); err != nil {
		return err
	}

	s.heartbeatChecker = connection.NewHeartbeatChecker(
		s.connMgr,
		s.cfg.Server.HeartbeatTimeout,
		s.cfg.Server.HeartbeatCheckInterval,
		s.logger,
		nil, // 超时只需关闭连接，下线处理走 handleSession 的清理路径
	)
	go s.heartbeatChecker.Start(ctx)

	s.logger.Info("WebTransport server starting", "addr", s.cfg.Server.Addr, "nodeId", s.cfg.Server.NodeID)
	return s.wtServer.ListenAndServe()
}

func (s *Server) handleSession(ctx context.Context, session *webtransport.Session) {
	defer s.wg.Done()

	c := connection.NewFromWebTransport(session, s.logger)
	s.connMgr.Add(c)
	defer func() {
		// 统一清理路径：解绑身份，最后一个连接触发下线流程
		if err := s.presence.OnDisconnect(ctx, c.ID()); err != nil {
			s.logger.Error("Failed to process disconnect", "connId", c.ID(), "error", err)
		}
		c.Close()
	}()

	// 首个 stream 必须是认证请求
	firstStream, err := session.AcceptStream(ctx)
	if err != nil {
		return
	}

	if err := s.handler.HandleFirstStream(ctx, c, firstStream); err != nil {
		s.logger.Warn("Auth failed, closing session", "connId", c.ID(), "error", err)
		if err := session.CloseWithError(4001, "auth failed"); err != nil {
			s.logger.Error("Failed to close session", "connId", c.ID(), "error", err)
		}
		return
	}

	// 认证成功后，客户端在同一个双向流上进行所有通信
	s.handler.HandleStream(ctx, c, firstStream)

	// 流关闭后函数返回，触发 defer 中的清理逻辑
}

// ConnManager 返回连接管理器
func (s *Server) ConnManager() *connection.Manager {
	return s.connMgr
}

// Shutdown 关闭服务器并等待会话清理完成
func (s *Server) Shutdown() {
	if s.subscriber != nil {
		if err := s.subscriber.Stop(); err != nil {
			s.logger.Error("Failed to stop event subscriber", "error", err)
		}
	}
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
}

func (s *Server) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.QUIC.CertFile != "" && s.cfg.QUIC.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.QUIC.CertFile, s.cfg.QUIC.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"cert_file", s.cfg.QUIC.CertFile,
			"key_file", s.cfg.QUIC.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h3", "webtransport"},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// 开发环境：生成自签名证书
	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	return devTLSConfig()
}
