package capture

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/m-lab/go/warnonerror"
	"github.com/quic-go/quic-go/logging"

	"crperf-go/common"
	"crperf-go/common/utils"
)

// Entry describes one connection of a packet capture.
type Entry struct {
	ODCID         string
	Perspective   logging.Perspective
	LocalAddr     string
	RemoteAddr    string
	Start         time.Time
	End           time.Time
	ClientRandoms []string
	CloseReason   string
}

type clientRandoms []string

func (r clientRandoms) IsNil() bool { return len(r) == 0 }
func (r clientRandoms) MarshalJSONArray(enc *gojay.Encoder) {
	for _, random := range r {
		enc.String(random)
	}
}

func perspectiveString(p logging.Perspective) string {
	switch p {
	case logging.PerspectiveClient:
		return "client"
	case logging.PerspectiveServer:
		return "server"
	default:
		return ""
	}
}

func (e *Entry) IsNil() bool { return e == nil }
func (e *Entry) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("odcid", e.ODCID)
	enc.StringKey("perspective", perspectiveString(e.Perspective))
	enc.StringKey("local_addr", e.LocalAddr)
	enc.StringKey("remote_addr", e.RemoteAddr)
	enc.StringKey("start", e.Start.UTC().Format(time.RFC3339Nano))
	if !e.End.IsZero() {
		enc.StringKey("end", e.End.UTC().Format(time.RFC3339Nano))
	}
	enc.ArrayKeyOmitEmpty("client_randoms", clientRandoms(e.ClientRandoms))
	enc.StringKeyOmitEmpty("close_reason", e.CloseReason)
}

// Index correlates connections with the TLS secrets needed to decrypt an
// externally recorded packet capture.
// Every closed connection is appended to the index as one JSON line
// holding its 5-tuple, time window and client randoms.
// All methods are safe for concurrent use.
type Index struct {
	mutex sync.Mutex

	keyLogMutex sync.Mutex
	keyLog      io.WriteCloser
	index       io.WriteCloser
	// client randoms not yet assigned to a connection, by remote address
	randoms map[string][]string
	logger  common.Logger
}

// NewIndex opens the key log and index files for appending.
// Either path may be empty.
func NewIndex(keyLogPath string, indexPath string, logger common.Logger) (*Index, error) {
	i := &Index{
		randoms: map[string][]string{},
		logger:  logger.WithPrefix("capture"),
	}
	if keyLogPath != "" {
		f, err := openAppend(keyLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open key log file: %w", err)
		}
		i.keyLog = f
	}
	if indexPath != "" {
		f, err := openAppend(indexPath)
		if err != nil {
			if i.keyLog != nil {
				warnonerror.Close(i.keyLog, "failed to close key log file")
			}
			return nil, fmt.Errorf("failed to open capture index: %w", err)
		}
		i.index = utils.NewBufferedWriteCloser(bufio.NewWriter(f), f)
	}
	return i, nil
}

// NewIndexWriters uses already opened writers, e.g. for tests.
func NewIndexWriters(keyLog io.WriteCloser, index io.WriteCloser, logger common.Logger) *Index {
	return &Index{
		keyLog:  keyLog,
		index:   index,
		randoms: map[string][]string{},
		logger:  logger.WithPrefix("capture"),
	}
}

// KeyLogWriter returns a tls.Config.KeyLogWriter for handshakes with remoteAddr.
func (i *Index) KeyLogWriter(remoteAddr string) io.Writer {
	w := &keyLogWriter{
		mutex: &i.keyLogMutex,
		onRandom: func(clientRandom string) {
			i.addRandom(remoteAddr, clientRandom)
		},
	}
	if i.keyLog != nil {
		w.w = i.keyLog
	}
	return w
}

// ServerTLSConfig wraps config so that every handshake logs to the writer of its remote address.
// Fields set on the returned config after wrapping, like NextProtos, apply to the handshakes.
func (i *Index) ServerTLSConfig(config *tls.Config) *tls.Config {
	outer := config.Clone()
	getConfigForClient := outer.GetConfigForClient
	outer.GetConfigForClient = func(chi *tls.ClientHelloInfo) (*tls.Config, error) {
		var conf *tls.Config
		if getConfigForClient != nil {
			c, err := getConfigForClient(chi)
			if err != nil {
				return nil, err
			}
			conf = c
		}
		if conf == nil {
			conf = outer
		}
		conf = conf.Clone()
		conf.GetConfigForClient = nil
		if len(conf.NextProtos) == 0 {
			conf.NextProtos = outer.NextProtos
		}
		if chi.Conn != nil {
			conf.KeyLogWriter = i.KeyLogWriter(chi.Conn.RemoteAddr().String())
		}
		return conf, nil
	}
	return outer
}

// ClientTLSConfig returns a copy of config that logs the secrets of handshakes with remoteAddr.
func (i *Index) ClientTLSConfig(config *tls.Config, remoteAddr string) *tls.Config {
	config = config.Clone()
	config.KeyLogWriter = i.KeyLogWriter(remoteAddr)
	return config
}

func (i *Index) addRandom(remoteAddr string, clientRandom string) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for _, r := range i.randoms[remoteAddr] {
		if r == clientRandom {
			return
		}
	}
	i.randoms[remoteAddr] = append(i.randoms[remoteAddr], clientRandom)
}

func (i *Index) takeRandoms(remoteAddr string) []string {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	randoms := i.randoms[remoteAddr]
	delete(i.randoms, remoteAddr)
	return randoms
}

func (i *Index) write(e *Entry) {
	if i.index == nil {
		return
	}
	i.mutex.Lock()
	defer i.mutex.Unlock()
	enc := gojay.NewEncoder(i.index)
	if err := enc.EncodeObject(e); err != nil {
		i.logger.Errorf("failed to write capture index: %s", err)
		return
	}
	if _, err := i.index.Write([]byte{'\n'}); err != nil {
		i.logger.Errorf("failed to write capture index: %s", err)
		return
	}
	// entries are visible to readers of a running server
	if f, ok := i.index.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			i.logger.Errorf("failed to flush capture index: %s", err)
		}
	}
}

// Tracer records the time window and addresses of a connection.
// The entry is written once the connection is closed.
func (i *Index) Tracer(_ context.Context, p logging.Perspective, odcid logging.ConnectionID) *logging.ConnectionTracer {
	var (
		mutex sync.Mutex
		entry = &Entry{ODCID: odcid.String(), Perspective: p, Start: time.Now()}
		once  sync.Once
	)
	return &logging.ConnectionTracer{
		StartedConnection: func(local, remote net.Addr, _, _ logging.ConnectionID) {
			mutex.Lock()
			defer mutex.Unlock()
			entry.LocalAddr = local.String()
			entry.RemoteAddr = remote.String()
		},
		ClosedConnection: func(err error) {
			mutex.Lock()
			defer mutex.Unlock()
			entry.End = time.Now()
			if err != nil {
				entry.CloseReason = err.Error()
			}
		},
		Close: func() {
			once.Do(func() {
				mutex.Lock()
				defer mutex.Unlock()
				if entry.End.IsZero() {
					entry.End = time.Now()
				}
				entry.ClientRandoms = i.takeRandoms(entry.RemoteAddr)
				i.write(entry)
			})
		},
	}
}

func (i *Index) Close() error {
	var err error
	if i.keyLog != nil {
		i.keyLogMutex.Lock()
		err = i.keyLog.Close()
		i.keyLogMutex.Unlock()
	}
	if i.index != nil {
		i.mutex.Lock()
		if closeErr := i.index.Close(); err == nil {
			err = closeErr
		}
		i.mutex.Unlock()
	}
	return err
}
