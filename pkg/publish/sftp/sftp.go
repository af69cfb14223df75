package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/publish"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ProviderName is the name of the provider.
const ProviderName = "sftp"

const (
	defaultMaxPacketSize = 32768
	defaultTimeout       = 10 * time.Second
)

type providerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	PrivateKeyFile string        `mapstructure:"private-key-file"`
	KnownHostsFile string        `mapstructure:"known-hosts-file"`
	RemoteRoot     string        `mapstructure:"remote-root"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type provider struct {
	config  *providerConfig
	auth    []ssh.AuthMethod
	hostKey ssh.HostKeyCallback
	logger  hclog.Logger
}

// New returns a new instance of the provider.
func New(logger hclog.Logger) publish.Provider {
	return &provider{logger: logger}
}

func (p *provider) Configure(mapConfig map[string]interface{}) error {
	pConfig := &providerConfig{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     pConfig,
	})
	if err != nil {
		return errors.Wrap(err, "failed creating configuration decoder")
	}
	if err := decoder.Decode(mapConfig); err != nil {
		p.logger.Error("error when decoding configuration", "reason", err)
		return errors.Wrap(err, "failed decoding provider configuration")
	}
	if pConfig.Host == "" || pConfig.User == "" || pConfig.RemoteRoot == "" {
		return errors.New("sftp host, user and remote root are required")
	}
	if pConfig.Port == 0 {
		pConfig.Port = 22
	}
	if pConfig.Timeout == 0 {
		pConfig.Timeout = defaultTimeout
	}
	authMethods := []ssh.AuthMethod{}
	if pConfig.PrivateKeyFile != "" {
		pemBytes, err := os.ReadFile(pConfig.PrivateKeyFile)
		if err != nil {
			return errors.Wrap(err, "failed reading private key")
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return errors.Wrap(err, "unable to parse private key")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if pConfig.Password != "" {
		authMethods = append(authMethods, ssh.Password(pConfig.Password))
	}
	if len(authMethods) == 0 {
		return errors.New("sftp password or private key file required")
	}
	hostKey, err := hostKeyCallback(pConfig.KnownHostsFile)
	if err != nil {
		return err
	}
	if pConfig.KnownHostsFile == "" {
		p.logger.Warn("no known hosts file configured, the SFTP host key is not verified", "host", pConfig.Host)
	}
	p.config = pConfig
	p.auth = authMethods
	p.hostKey = hostKey
	return nil
}

// hostKeyCallback verifies host keys against the known_hosts file, when given.
func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading known hosts file")
	}
	return callback, nil
}

// connect dials the remote, retrying until the timeout elapses.
func (p *provider) connect(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	hostPort := net.JoinHostPort(p.config.Host, fmt.Sprintf("%d", p.config.Port))
	config := &ssh.ClientConfig{
		User:            p.config.User,
		Auth:            p.auth,
		HostKeyCallback: p.hostKey,
		Timeout:         p.config.Timeout,
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	for {
		if err := waitCtx.Err(); err != nil {
			return nil, nil, errors.Wrapf(err, "failed connecting to %s", hostPort)
		}
		sshClient, err := ssh.Dial("tcp", hostPort, config)
		if err != nil {
			p.logger.Debug("SSH: not connected yet", "host-port", hostPort, "reason", err)
			select {
			case <-time.After(time.Second):
			case <-waitCtx.Done():
			}
			continue
		}
		sftpClient, err := sftp.NewClient(sshClient, sftp.MaxPacket(defaultMaxPacketSize))
		if err != nil {
			sshClient.Close()
			return nil, nil, errors.Wrap(err, "unable to start sftp subsystem")
		}
		return sshClient, sftpClient, nil
	}
}

func (p *provider) Publish(ctx context.Context, localRoot string, files []string) error {
	if p.config == nil {
		return errors.New("provider not configured")
	}
	if len(files) == 0 {
		return nil
	}
	sshClient, sftpClient, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer sftpClient.Close()
	return upload(ctx, p.logger, sftpClient, localRoot, p.config.RemoteRoot, files)
}

// RemotePath maps a local file under localRoot to the remote root.
func RemotePath(localRoot, remoteRoot, file string) (string, error) {
	rel, err := filepath.Rel(localRoot, file)
	if err != nil {
		return "", errors.Wrapf(err, "file %s not relative to %s", file, localRoot)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %s is outside of %s", file, localRoot)
	}
	return path.Join(remoteRoot, filepath.ToSlash(rel)), nil
}

func upload(ctx context.Context, logger hclog.Logger, client *sftp.Client, localRoot, remoteRoot string, files []string) error {
	var result *multierror.Error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		target, err := RemotePath(localRoot, remoteRoot, file)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := uploadFile(client, file, target); err != nil {
			logger.Error("failed publishing file", "file", file, "reason", err)
			result = multierror.Append(result, err)
			continue
		}
		logger.Debug("file published", "file", file, "target", target)
	}
	return result.ErrorOrNil()
}

func uploadFile(client *sftp.Client, source, target string) error {
	if err := client.MkdirAll(path.Dir(target)); err != nil {
		return errors.Wrapf(err, "failed creating remote directory for %s", target)
	}
	in, err := os.Open(source)
	if err != nil {
		return errors.Wrap(err, "failed opening local file")
	}
	defer in.Close()
	// write under a temporary name and rename, readers never see partial files
	tmp := target + ".part"
	out, err := client.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed creating remote file %s", tmp)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		client.Remove(tmp)
		return errors.Wrapf(err, "failed uploading %s", source)
	}
	if err := out.Close(); err != nil {
		client.Remove(tmp)
		return errors.Wrapf(err, "failed closing remote file %s", tmp)
	}
	client.Remove(target)
	if err := client.Rename(tmp, target); err != nil {
		return errors.Wrapf(err, "failed renaming remote file %s", tmp)
	}
	return nil
}
