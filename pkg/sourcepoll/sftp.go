package sourcepoll

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// SFTPPoller pulls intake CSVs from the remote drop site. Remote files are
// deleted only after the whole batch is processed, and never when the file
// was quarantined.
type SFTPPoller struct {
	cfg      config.SFTPConfig
	importer *Importer
	paths    config.PathsConfig
}

// NewSFTPPoller creates a poller.
func NewSFTPPoller(cfg config.SFTPConfig, importer *Importer, paths config.PathsConfig) *SFTPPoller {
	return &SFTPPoller{cfg: cfg, importer: importer, paths: paths}
}

// Poll runs one full SFTP cycle: list, download, import, archive, then
// delete the successfully imported remote files. Connections are closed
// before return in every path.
func (p *SFTPPoller) Poll(ctx context.Context) (*ImportStats, error) {
	stats := &ImportStats{}

	sshClient, err := p.dial()
	if err != nil {
		return stats, fmt.Errorf("sftp connect failed: %w", err)
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return stats, fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	remoteFiles, err := p.listRemoteCSVs(client)
	if err != nil {
		return stats, err
	}
	if len(remoteFiles) == 0 {
		return stats, nil
	}

	var deleteQueue []string

	for _, name := range remoteFiles {
		if ctx.Err() != nil {
			break
		}
		stats.Files++

		remotePath := path.Join(p.cfg.RemoteDir, name)
		localPath, err := p.fetch(client, remotePath, name)
		if err != nil {
			stats.Errors++
			logger.Error("failed to download remote csv",
				logger.KeyCSVFile, remotePath, logger.KeyError, err)
			continue
		}

		kind, err := p.importer.ImportFile(ctx, localPath, stats)
		if err != nil {
			// Unrecognized or unparseable files are quarantined locally and
			// left in place remotely for operator inspection.
			stats.Quarantine++
			logger.Error("remote csv rejected, quarantining",
				logger.KeyCSVFile, name,
				logger.KeySource, "sftp",
				logger.KeyError, err)
			p.importer.moveTo(localPath, p.paths.Quarantine())
			continue
		}

		if err := p.importer.archive(localPath, kind); err != nil {
			logger.Error("failed to archive imported file",
				logger.KeyCSVFile, localPath, logger.KeyError, err)
		}
		deleteQueue = append(deleteQueue, remotePath)
	}

	for _, remotePath := range deleteQueue {
		if err := client.Remove(remotePath); err != nil {
			logger.Error("failed to delete remote csv",
				logger.KeyCSVFile, remotePath, logger.KeyError, err)
		}
	}

	logger.Info("sftp poll finished",
		"files", stats.Files,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"quarantined", stats.Quarantine,
		"deleted_remote", len(deleteQueue))
	return stats, nil
}

// dial opens the SSH connection using public-key auth.
func (p *SFTPPoller) dial() (*ssh.Client, error) {
	keyData, err := os.ReadFile(p.cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if p.cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(p.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("sftp host key verification disabled; set known_hosts_path to enable it")
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            p.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         p.cfg.ConnectTimeout,
	})
}

// listRemoteCSVs returns remote .csv filenames sorted by mtime, oldest
// first.
func (p *SFTPPoller) listRemoteCSVs(client *sftp.Client) ([]string, error) {
	entries, err := client.ReadDir(p.cfg.RemoteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote directory: %w", err)
	}

	var files []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, e)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime().Before(files[j].ModTime()) })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name()
	}
	return names, nil
}

// fetch downloads one remote file into the incoming staging area.
func (p *SFTPPoller) fetch(client *sftp.Client, remotePath, name string) (string, error) {
	if err := os.MkdirAll(p.paths.Incoming(), 0755); err != nil {
		return "", err
	}
	localPath := filepath.Join(p.paths.Incoming(), name)

	src, err := client.Open(remotePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}
