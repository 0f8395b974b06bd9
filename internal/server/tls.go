package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"time"
)

// 开发证书：WebTransport 允许浏览器信任有效期不超过 14 天的自签证书，
// 过期的证书视同缺失，下次启动时重新生成
const (
	devCertFile     = "chat_dev_cert.pem"
	devKeyFile      = "chat_dev_key.pem"
	devCertLifetime = 10 * 24 * time.Hour
)

// devTLSConfig 加载本地开发证书，缺失或过期时重新生成
func devTLSConfig() (*tls.Config, error) {
	cert, err := loadDevCert()
	if err != nil {
		slog.Info("Generating dev certificate", "reason", err.Error())
		cert, err = generateDevCert()
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{"h3", "webtransport"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// loadDevCert 加载已有的开发证书
func loadDevCert() (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(devCertFile, devKeyFile)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, err
	}
	if time.Now().After(leaf.NotAfter) {
		return nil, fmt.Errorf("dev certificate expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}
	slog.Info("Loaded existing dev certificate", "cert", devCertFile, "expires", leaf.NotAfter)
	return &cert, nil
}

// generateDevCert 生成自签名证书并写入本地文件
func generateDevCert() (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Messenger Backend"},
			CommonName:   "messenger-chat-dev",
		},
		NotBefore:             now.Add(-time.Hour), // 容忍客户端时钟偏差
		NotAfter:              now.Add(devCertLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}

	if err := writePEM(devCertFile, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(devKeyFile, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}, 0600); err != nil {
		return nil, err
	}
	slog.Info("Dev certificate saved", "cert", devCertFile, "key", devKeyFile)

	cert, err := tls.LoadX509KeyPair(devCertFile, devKeyFile)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func writePEM(path string, block *pem.Block, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, block); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
