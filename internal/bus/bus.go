// Package bus is the local control channel between the CLI and the daemon:
// a unix socket carrying one-letter commands and one-line replies.
package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/logging"
)

const SockName = "control.sock"
const PidName = "quilldict.pid"
const ProtoVer = "1.0"

// Commands understood by the daemon.
const (
	CmdStart    byte = 'b'
	CmdStop     byte = 'e'
	CmdStatus   byte = 's'
	CmdSessions byte = 'l'
	CmdDiagnose byte = 'd'
	CmdVersion  byte = 'v'
	CmdQuit     byte = 'q'
)

const replyTimeout = 2 * time.Minute

func cacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "quilldict"), nil
}

// ~/.cache/quilldict/control.sock
func getSockPath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/quilldict/quilldict.pid
func getPidPath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

func SockPath() (string, error) { return getSockPath() }

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", s.path)
}

func (s *socketManager) send(cmd byte) (string, error) {
	c, err := s.dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(replyTimeout))
	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting fails when a live process owns the pid file. Stale or
// unreadable pid files are removed.
func (p *pidManager) checkExisting() error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func defaultSocketManager() (*socketManager, error) {
	path, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: path}, nil
}

func defaultPidManager() (*pidManager, error) {
	path, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func Listen() (net.Listener, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

// SendCommand sends cmd to the running daemon and returns its reply line.
func SendCommand(cmd byte) (string, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return "", err
	}
	return sm.send(cmd)
}

func CheckExistingDaemon() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}

// Handler answers one command with a reply line, without the trailing newline.
type Handler interface {
	Handle(ctx context.Context, cmd byte) string
}

type HandlerFunc func(ctx context.Context, cmd byte) string

func (f HandlerFunc) Handle(ctx context.Context, cmd byte) string { return f(ctx, cmd) }

func OK(msg string) string     { return "OK " + msg }
func Status(msg string) string { return "STATUS " + msg }
func Err(msg string) string    { return "ERR " + msg }

// Reply splits a reply line into its kind and message.
func Reply(line string) (kind, msg string) {
	line = strings.TrimRight(line, "\r\n")
	kind, msg, _ = strings.Cut(line, " ")
	return kind, msg
}

// Serve accepts connections on ln until ctx is cancelled, handling one
// command per connection.
func Serve(ctx context.Context, ln net.Listener, h Handler) error {
	log := logging.WithComponent("bus")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go handle(ctx, c, h, log)
	}
}

func handle(ctx context.Context, c net.Conn, h Handler, log zerolog.Logger) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Debug().Err(err).Msg("client read error")
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}

	cmd := line[0]
	log.Debug().Str("cmd", string(cmd)).Msg("command received")
	reply := strings.ReplaceAll(h.Handle(ctx, cmd), "\n", " ")
	fmt.Fprintf(c, "%s\n", reply)
}
