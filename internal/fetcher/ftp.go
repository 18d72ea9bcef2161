package fetcher

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP source.
type FTPOptions struct {
	Host     string // host:port
	Dir      string // drop directory holding the archives
	User     string
	Password string
	Timeout  time.Duration
}

// FTPSource locates and retrieves the newest registration archive from the
// DMR FTP drop directory.
type FTPSource struct {
	opts FTPOptions
}

// NewFTP creates an FTPSource with the given options.
func NewFTP(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
	}
	if opts.Password == "" {
		opts.Password = "anonymous"
	}
	return &FTPSource{opts: opts}
}

// Name returns the FTP endpoint for logging.
func (s *FTPSource) Name() string {
	return "ftp://" + s.opts.Host + s.opts.Dir
}

// connect dials the server, logs in, switches to binary mode, and changes
// into the drop directory. The caller must Quit the returned connection.
func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.opts.Host,
		ftp.DialWithTimeout(s.opts.Timeout),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", s.opts.Host)
	}

	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp: set binary mode")
	}

	if err := conn.ChangeDir(s.opts.Dir); err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "ftp: change dir %s", s.opts.Dir)
	}

	return conn, nil
}

// List returns the candidate ZIP archives in the drop directory.
func (s *FTPSource) List(ctx context.Context) ([]Archive, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	return listArchives(conn)
}

func listArchives(conn *ftp.ServerConn) ([]Archive, error) {
	entries, err := conn.List("")
	if err != nil {
		return nil, eris.Wrap(err, "ftp: list directory")
	}

	var archives []Archive
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name), ".zip") {
			continue
		}
		archives = append(archives, Archive{
			Name:    e.Name,
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}

	return archives, nil
}

// Newest selects the archive with the latest modification time. Ties, or
// listings without usable times, break toward the lexicographically greatest
// name, which sorts last for the date-stamped names the DMR drop uses.
func Newest(archives []Archive) (Archive, error) {
	if len(archives) == 0 {
		return Archive{}, eris.New("ftp: no zip archives in drop directory")
	}

	best := archives[0]
	for _, a := range archives[1:] {
		if a.ModTime.After(best.ModTime) {
			best = a
			continue
		}
		if a.ModTime.Equal(best.ModTime) && a.Name > best.Name {
			best = a
		}
	}

	return best, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the
// reader also closes the FTP response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ftp: quit connection")
	}
	return nil
}

// Open locates the newest archive in the drop directory and retrieves it.
// The caller must close the returned ReadCloser to release the connection.
func (s *FTPSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	log := zap.L().With(zap.String("component", "fetcher.ftp"))

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, 0, err
	}

	archives, err := listArchives(conn)
	if err != nil {
		conn.Quit()
		return nil, 0, err
	}

	newest, err := Newest(archives)
	if err != nil {
		conn.Quit()
		return nil, 0, err
	}

	log.Info("retrieving archive",
		zap.String("name", newest.Name),
		zap.Int64("size", newest.Size),
		zap.Time("mod_time", newest.ModTime),
	)

	resp, err := conn.Retr(newest.Name)
	if err != nil {
		conn.Quit()
		return nil, 0, eris.Wrapf(err, "ftp: retrieve %s", newest.Name)
	}

	return &ftpConnReader{resp: resp, conn: conn}, newest.Size, nil
}
