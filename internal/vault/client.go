package vault

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/pkg/metrics"
)

// Client is a typed client for the secret store's HTTP API. Every
// operation decodes into a concrete response struct; callers never see
// raw maps.
type Client struct {
	address string
	token   string
	cfg     config.VaultConfig
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg config.VaultConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &Client{
		address: strings.TrimRight(cfg.Address, "/"),
		token:   cfg.Token,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

type SecretData struct {
	Data     map[string]string `json:"data"`
	Metadata SecretMetadata    `json:"metadata"`
}

type SecretMetadata struct {
	Version     int       `json:"version"`
	CreatedTime time.Time `json:"created_time"`
}

type secretResponse struct {
	RequestID string     `json:"request_id"`
	Data      SecretData `json:"data"`
}

type writeSecretResponse struct {
	Data SecretMetadata `json:"data"`
}

type HealthStatus struct {
	Initialized bool   `json:"initialized"`
	Sealed      bool   `json:"sealed"`
	Standby     bool   `json:"standby"`
	Version     string `json:"version"`
}

type CertificateData struct {
	Certificate  string `json:"certificate"`
	PrivateKey   string `json:"private_key"`
	SerialNumber string `json:"serial_number"`
	Expiration   int64  `json:"expiration"`
}

type certificateResponse struct {
	Data CertificateData `json:"data"`
}

// GetSecret reads one KV secret version.
func (c *Client) GetSecret(ctx context.Context, path string) (*SecretData, error) {
	var response secretResponse
	if err := c.do(ctx, http.MethodGet, "/v1/secret/data/"+path, nil, &response); err != nil {
		metrics.VaultRequestsTotal.WithLabelValues("get_secret", "error").Inc()
		return nil, err
	}

	metrics.VaultRequestsTotal.WithLabelValues("get_secret", "success").Inc()
	return &response.Data, nil
}

// RotateSecret writes a new secret version and returns its number.
func (c *Client) RotateSecret(ctx context.Context, path string, data map[string]string) (int, error) {
	body := map[string]interface{}{"data": data}

	var response writeSecretResponse
	if err := c.do(ctx, http.MethodPost, "/v1/secret/data/"+path, body, &response); err != nil {
		metrics.VaultRequestsTotal.WithLabelValues("rotate_secret", "error").Inc()
		return 0, err
	}

	metrics.VaultRequestsTotal.WithLabelValues("rotate_secret", "success").Inc()
	c.logger.InfowCtx(ctx, "Secret rotated",
		"path", path,
		"version", response.Data.Version,
	)
	return response.Data.Version, nil
}

// ValidateConnectivity checks that the secret store is reachable,
// initialized and unsealed.
func (c *Client) ValidateConnectivity(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do(ctx, http.MethodGet, "/v1/sys/health", nil, &status); err != nil {
		metrics.VaultRequestsTotal.WithLabelValues("health", "error").Inc()
		return nil, err
	}

	metrics.VaultRequestsTotal.WithLabelValues("health", "success").Inc()
	if !status.Initialized {
		return &status, fmt.Errorf("secret store is not initialized")
	}
	if status.Sealed {
		return &status, fmt.Errorf("secret store is sealed")
	}
	return &status, nil
}

// IssueCertificate requests a fresh certificate from the internal CA.
func (c *Client) IssueCertificate(ctx context.Context, role, commonName string, ttl time.Duration) (*CertificateData, error) {
	body := map[string]interface{}{
		"common_name": commonName,
		"ttl":         ttl.String(),
	}

	var response certificateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/pki/issue/"+role, body, &response); err != nil {
		metrics.VaultRequestsTotal.WithLabelValues("issue_certificate", "error").Inc()
		return nil, err
	}

	metrics.VaultRequestsTotal.WithLabelValues("issue_certificate", "success").Inc()
	return &response.Data, nil
}

// CertificateExpiry reads the configured TLS certificate secret and
// returns its NotAfter.
func (c *Client) CertificateExpiry(ctx context.Context) (time.Time, error) {
	if c.cfg.TLSCertificate == "" {
		return time.Time{}, fmt.Errorf("no TLS certificate path configured")
	}

	secret, err := c.GetSecret(ctx, c.cfg.TLSCertificate)
	if err != nil {
		return time.Time{}, err
	}

	certPEM, ok := secret.Data["certificate"]
	if !ok {
		return time.Time{}, fmt.Errorf("secret %s has no certificate key", c.cfg.TLSCertificate)
	}

	return ParseCertificateExpiry([]byte(certPEM))
}

// FileKey fetches the symmetric file decryption key.
func (c *Client) FileKey(ctx context.Context) ([]byte, error) {
	if c.cfg.FileKeySecret == "" {
		return nil, fmt.Errorf("no file key secret path configured")
	}

	secret, err := c.GetSecret(ctx, c.cfg.FileKeySecret)
	if err != nil {
		return nil, err
	}

	key, ok := secret.Data["key"]
	if !ok {
		return nil, fmt.Errorf("secret %s has no key field", c.cfg.FileKeySecret)
	}
	return []byte(key), nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.address+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", constants.ContentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("secret store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("secret store returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ParseCertificateExpiry extracts NotAfter from a PEM certificate.
func ParseCertificateExpiry(certPEM []byte) (time.Time, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return time.Time{}, fmt.Errorf("no PEM block found")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert.NotAfter, nil
}
