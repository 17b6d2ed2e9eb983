package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

var (
	// ErrSourceOpen wraps every failure to open or start reading a source.
	ErrSourceOpen = errors.New("opening source")
	// ErrMalformedRow marks a row the CSV reader could not split. The reader stays usable.
	ErrMalformedRow = errors.New("malformed row")
)

// Source yields a fresh reader over the same rows each time it is opened. The
// pipeline opens it twice per run: once to sample, once to process.
type Source interface {
	Open(ctx context.Context) (RecordReader, error)
	Name() string
}

// RecordReader returns rows until io.EOF.
type RecordReader interface {
	Next() (model.RawRecord, error)
	Close() error
}

// NewSource picks a Source implementation from the form of uri: s3://bucket/key,
// http(s)://..., or a local path.
func NewSource(uri string, opts ...S3Option) (Source, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", uri)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, errors.Errorf("s3 source needs bucket and key: %s", uri)
		}
		return NewS3Source(u.Host, key, opts...), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return &HTTPSource{URL: uri}, nil
	case strings.TrimSpace(uri) == "":
		return nil, errors.New("no source given")
	default:
		return &FileSource{Path: uri}, nil
	}
}

// FileSource reads a CSV file from disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return s.Path }

func (s *FileSource) Open(ctx context.Context) (RecordReader, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceOpen, "%s: %v", s.Path, err)
	}
	return newCSVReader(f, s.Path)
}

// HTTPSource downloads a CSV over HTTP(S).
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Name() string { return s.URL }

func (s *HTTPSource) Open(ctx context.Context) (RecordReader, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceOpen, "%s: %v", s.URL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceOpen, "%s: %v", s.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrSourceOpen, "%s: status %s", s.URL, resp.Status)
	}
	return newCSVReader(resp.Body, s.URL)
}

// S3Option configures an S3Source.
type S3Option func(s *S3Source)

// OptS3Region sets the AWS region.
func OptS3Region(region string) S3Option {
	return func(s *S3Source) {
		s.region = region
	}
}

// OptS3Endpoint points the client at an S3-compatible endpoint (path-style addressing).
func OptS3Endpoint(endpoint string) S3Option {
	return func(s *S3Source) {
		s.endpoint = endpoint
	}
}

// S3Source reads one CSV object from S3.
type S3Source struct {
	bucket   string
	key      string
	region   string
	endpoint string

	s3 *s3.S3
}

// NewS3Source returns a Source for s3://bucket/key. The AWS session is created on first Open.
func NewS3Source(bucket, key string, opts ...S3Option) *S3Source {
	s := &S3Source{bucket: bucket, key: key, region: "us-east-1"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3Source) Name() string { return "s3://" + s.bucket + "/" + s.key }

func (s *S3Source) Open(ctx context.Context) (RecordReader, error) {
	if s.s3 == nil {
		cfg := &aws.Config{Region: aws.String(s.region)}
		if s.endpoint != "" {
			cfg.Endpoint = aws.String(s.endpoint)
			cfg.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, errors.Wrapf(ErrSourceOpen, "aws session: %v", err)
		}
		s.s3 = s3.New(sess)
	}
	result, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, errors.Wrapf(ErrSourceOpen, "fetching %s: %v", s.Name(), err)
	}
	return newCSVReader(result.Body, s.Name())
}

// csvReader maps each row onto the header. Rows with the wrong number of fields or
// broken quoting come back as ErrMalformedRow.
type csvReader struct {
	name    string
	body    io.ReadCloser
	r       *csv.Reader
	headers []string
	empty   bool
}

func newCSVReader(body io.ReadCloser, name string) (*csvReader, error) {
	r := csv.NewReader(body)
	r.LazyQuotes = true
	headers, err := r.Read()
	if err == io.EOF {
		// no header, no rows
		return &csvReader{name: name, body: body, r: r, empty: true}, nil
	}
	if err != nil {
		body.Close()
		return nil, errors.Wrapf(ErrSourceOpen, "reading header of %s: %v", name, err)
	}
	for i, h := range headers {
		h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		headers[i] = strings.TrimPrefix(h, "\ufeff")
	}
	r.FieldsPerRecord = len(headers)
	return &csvReader{name: name, body: body, r: r, headers: headers}, nil
}

func (c *csvReader) Next() (model.RawRecord, error) {
	if c.empty {
		return nil, io.EOF
	}
	row, err := c.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, errors.Wrapf(ErrMalformedRow, "%s line %d: %v", c.name, perr.Line, perr.Err)
		}
		return nil, errors.Wrapf(err, "reading %s", c.name)
	}
	rec := make(model.RawRecord, len(c.headers))
	for i, h := range c.headers {
		rec[h] = row[i]
	}
	return rec, nil
}

func (c *csvReader) Close() error {
	return c.body.Close()
}
