package sshc

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/bt-fleet/internal/agent"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

const (
	serviceName = "bt-agent"
	BinaryPath  = "/usr/local/bin/bt-agent"
	UnitPath    = "/etc/systemd/system/bt-agent.service"
)

type HostSpec struct {
	Addr         string
	User         string
	PrivateKey   []byte
	Password     string
	UseSudo      bool
	SudoPassword string
}

func (h HostSpec) clientConfig() (*ssh.ClientConfig, error) {
	if h.Addr == "" || h.User == "" {
		return nil, fmt.Errorf("host addr and user required")
	}
	var authMethods []ssh.AuthMethod
	if len(h.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(bytes.TrimSpace(h.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if h.Password != "" {
		authMethods = append(authMethods, ssh.Password(h.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no auth methods provided")
	}
	return &ssh.ClientConfig{
		User:            h.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}, nil
}

func dial(h HostSpec) (*ssh.Client, error) {
	cfg, err := h.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial("tcp", h.Addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", h.Addr, err)
	}
	return client, nil
}

type remoteFile struct {
	tmp  string
	dst  string
	mode os.FileMode
	data []byte
}

// installFiles lists what an install writes: the binary, its config and the
// systemd unit.
func installFiles(cfg agent.Config, agentBinary []byte) ([]remoteFile, error) {
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return []remoteFile{
		{dst: BinaryPath, mode: 0o755, data: agentBinary},
		{dst: agent.DefaultConfigPath, mode: 0o644, data: cfgBytes},
		{dst: UnitPath, mode: 0o644, data: []byte(systemdUnit)},
	}, nil
}

// installScript moves staged files into place when running under sudo and
// restarts the service.
func installScript(files []remoteFile, useSudo bool) string {
	commands := []string{"set -e"}
	if useSudo {
		for _, file := range files {
			mode := fmt.Sprintf("%04o", file.mode.Perm())
			commands = append(commands,
				fmt.Sprintf("install -D -m %s %s %s", mode, file.tmp, file.dst),
				fmt.Sprintf("rm -f %s", file.tmp))
		}
	}
	commands = append(commands,
		"systemctl daemon-reload",
		"systemctl enable "+serviceName,
		"systemctl restart "+serviceName,
	)
	return strings.Join(commands, " && ")
}

// InstallAgent uploads the agent binary/config/service and enables the unit remotely.
func InstallAgent(h HostSpec, cfg agent.Config, agentBinary []byte) error {
	files, err := installFiles(cfg, agentBinary)
	if err != nil {
		return err
	}
	client, err := dial(h)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(h.PrivateKey) > 0 {
		if err := authorizeKey(client, h.PrivateKey); err != nil {
			log.Printf("warning: failed to install ssh key: %v", err)
		} else {
			log.Printf("installed ssh key on %s", h.Addr)
		}
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	if h.UseSudo {
		for i := range files {
			files[i].tmp = fmt.Sprintf("/tmp/%s-%d-%d", serviceName, time.Now().UnixNano(), i)
			if err := writeRemoteFile(sftpClient, files[i].tmp, files[i].data, 0o600); err != nil {
				return err
			}
		}
	} else {
		for _, file := range files {
			if err := sftpClient.MkdirAll(filepath.Dir(file.dst)); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(file.dst), err)
			}
			if err := writeRemoteFile(sftpClient, file.dst, file.data, file.mode); err != nil {
				return err
			}
		}
	}

	if err := runRemote(client, installScript(files, h.UseSudo), h.SudoPassword, h.UseSudo); err != nil {
		return fmt.Errorf("run remote command: %w", err)
	}
	log.Printf("installed %s on %s", serviceName, h.Addr)
	return nil
}

// authorizeKey appends the key's public half to the login user's
// authorized_keys so later installs need no password.
func authorizeKey(client *ssh.Client, privateKey []byte) error {
	signer, err := ssh.ParsePrivateKey(bytes.TrimSpace(privateKey))
	if err != nil {
		return err
	}
	pubKey := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
	cmd := fmt.Sprintf("mkdir -p ~/.ssh && chmod 700 ~/.ssh && (grep -qxF '%[1]s' ~/.ssh/authorized_keys 2>/dev/null || echo '%[1]s' >> ~/.ssh/authorized_keys) && chmod 600 ~/.ssh/authorized_keys", pubKey)
	return runRemote(client, cmd, "", false)
}

func writeRemoteFile(c *sftp.Client, path string, data []byte, perm os.FileMode) error {
	f, err := c.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write remote file %s: %w", path, err)
	}
	if err := c.Chmod(path, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func runRemote(client *ssh.Client, script, sudoPassword string, useSudo bool) error {
	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()
	var output bytes.Buffer
	sess.Stdout = &output
	sess.Stderr = &output
	cmd := fmt.Sprintf("bash -lc %q", script)
	if useSudo {
		if sudoPassword == "" {
			return fmt.Errorf("sudo password required")
		}
		stdin, err := sess.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		cmd = fmt.Sprintf("sudo -S -p '' %s", cmd)
		go func(stdin io.WriteCloser) {
			defer stdin.Close()
			io.WriteString(stdin, sudoPassword+"\n")
		}(stdin)
	}
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("command failed: %w (output: %s)", err, output.String())
	}
	return nil
}

var systemdUnit = `[Unit]
Description=Behavior tree agent
After=network-online.target
Wants=network-online.target

[Service]
Environment=AGENT_CONFIG_PATH=` + agent.DefaultConfigPath + `
ExecStart=` + BinaryPath + `
Restart=always
RestartSec=2

[Install]
WantedBy=multi-user.target
`

// DetectArch connects to the host and returns the Go architecture name
// (amd64, arm64, arm) of its CPU.
func DetectArch(h HostSpec) (string, error) {
	client, err := dial(h)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	out, err := session.Output("uname -m")
	if err != nil {
		return "", fmt.Errorf("uname -m: %w", err)
	}
	return goArch(string(out)), nil
}

func goArch(uname string) string {
	arch := strings.TrimSpace(uname)
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	case "armv7l", "armv6l":
		return "arm"
	default:
		return arch
	}
}
