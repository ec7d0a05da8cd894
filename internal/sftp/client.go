package sftp

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"sfex/internal/vendors"
)

// RemoteFile is the subset of remote metadata the poller cares about.
type RemoteFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// RemoteClient abstracts one SFTP session so the poller can be tested
// without a server.
type RemoteClient interface {
	List(dir, pattern string) ([]RemoteFile, error)
	Download(remotePath string, w io.Writer) (int64, error)
	Remove(remotePath string) error
	Close() error
}

// Dialer opens a session for one vendor's drop point.
type Dialer func(settings vendors.SFTPSettings) (RemoteClient, error)

type Client struct {
	conn *ssh.Client
	sftp *sftp.Client
}

// Dial connects with password or private-key auth, whichever the
// vendor profile provides.
func Dial(settings vendors.SFTPSettings) (RemoteClient, error) {
	auth, err := authMethods(settings)
	if err != nil {
		return nil, err
	}

	port := settings.Port
	if port == 0 {
		port = 22
	}

	sshConfig := &ssh.ClientConfig{
		User:            settings.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", settings.Host, port)
	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open sftp session on %s: %w", addr, err)
	}

	return &Client{conn: conn, sftp: client}, nil
}

func authMethods(settings vendors.SFTPSettings) ([]ssh.AuthMethod, error) {
	if settings.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(settings.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if settings.Password != "" {
		return []ssh.AuthMethod{ssh.Password(settings.Password)}, nil
	}

	return nil, fmt.Errorf("vendor sftp settings have neither password nor private key")
}

func (c *Client) List(dir, pattern string) ([]RemoteFile, error) {
	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]RemoteFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			matched, err := path.Match(pattern, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, RemoteFile{
			Name:    entry.Name(),
			Size:    entry.Size(),
			ModTime: entry.ModTime(),
		})
	}
	return files, nil
}

func (c *Client) Download(remotePath string, w io.Writer) (int64, error) {
	f, err := c.sftp.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return n, nil
}

func (c *Client) Remove(remotePath string) error {
	if err := c.sftp.Remove(remotePath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", remotePath, err)
	}
	return nil
}

func (c *Client) Close() error {
	err := c.sftp.Close()
	if closeErr := c.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
