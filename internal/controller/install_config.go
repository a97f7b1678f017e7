package controller

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"example.com/bt-fleet/internal/db"
	"golang.org/x/crypto/ssh"
)

// installConfigRequest is the per-agent ssh access used by reinstalls.
type installConfigRequest struct {
	Address string `json:"address"`
	User    string `json:"user"`
	SSHKey  string `json:"ssh_key"`
}

func (req installConfigRequest) validate() error {
	var errs []error
	if strings.TrimSpace(req.Address) == "" {
		errs = append(errs, errors.New("address required"))
	} else if err := checkAddress(req.Address); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(req.User) == "" {
		errs = append(errs, errors.New("user required"))
	}
	if err := checkPrivateKey(req.SSHKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (req installConfigRequest) toInstallConfig() db.InstallConfig {
	return db.InstallConfig{
		Address: strings.TrimSpace(req.Address),
		User:    strings.TrimSpace(req.User),
		SSHKey:  req.SSHKey,
	}
}

// installDefaultsRequest is the fleet-wide user and key offered to new installs.
type installDefaultsRequest struct {
	User   string `json:"user"`
	SSHKey string `json:"ssh_key"`
}

func (req installDefaultsRequest) validate() error {
	var errs []error
	if strings.TrimSpace(req.User) == "" {
		errs = append(errs, errors.New("user required"))
	}
	if err := checkPrivateKey(req.SSHKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (req installDefaultsRequest) toInstallConfig() db.InstallConfig {
	return db.InstallConfig{
		User:   strings.TrimSpace(req.User),
		SSHKey: req.SSHKey,
	}
}

// checkPrivateKey accepts an unencrypted key ssh can sign with.
func checkPrivateKey(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("ssh_key required")
	}
	if _, err := ssh.ParsePrivateKey([]byte(raw)); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return errors.New("ssh_key must not be passphrase protected")
		}
		return fmt.Errorf("ssh_key must be a valid private key: %w", err)
	}
	return nil
}

// checkAddress accepts host or host:port.
func checkAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	host := addr
	if strings.Contains(addr, ":") && net.ParseIP(addr) == nil {
		h, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("address %q: %w", addr, err)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("address %q has an invalid port", addr)
		}
		host = h
	}
	if host == "" || strings.ContainsAny(host, " /") {
		return fmt.Errorf("address %q is not a host or host:port", addr)
	}
	return nil
}
