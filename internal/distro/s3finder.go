package distro

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/loader"
)

// s3Object is the minimal subset of the AWS SDK's S3 client this finder
// needs, letting tests substitute a fake.
type s3Object interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Finder works with zipped distros stored remotely in an S3 bucket,
// following the `{distro}_v{version}.zip` naming convention. An archive is
// fetched with one ranged GetObject covering the whole object and held in
// memory; members are not fetched by separate partial reads.
type S3Finder struct {
	Client s3Object
	Bucket string
	Prefix string

	mu       sync.Mutex
	archives map[string]*remoteZip // keyed by object key, amortizes open cost
}

// NewS3Finder builds a finder using the default AWS credential chain for
// region/auth discovery.
func NewS3Finder(ctx context.Context, bucket, prefix string) (*S3Finder, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	return &S3Finder{
		Client:   s3.NewFromConfig(cfg),
		Bucket:   bucket,
		Prefix:   prefix,
		archives: map[string]*remoteZip{},
	}, nil
}

func (f *S3Finder) key(name string) string {
	return path.Join(f.Prefix, name)
}

// Enumerate does not list the bucket and always returns an error. This
// finder's locations come only from the index cache (DistroTree.AddFromCache);
// it supplies LoadDescriptor/Content/Install for those entries.
func (f *S3Finder) Enumerate() ([]Location, error) {
	return nil, errors.New("s3: enumeration requires the index cache; live listing is not implemented")
}

func (f *S3Finder) Content(loc Location) (string, error) {
	return loc.Path, nil
}

type remoteZip struct {
	key    string
	size   int64
	reader *zip.Reader
	data   *bytes.Reader
}

// archive returns a cached *zip.Reader for the object at key, opening it
// with HeadObject for the size and then one GetObject whose http Range
// header covers the whole object, the first time it is needed. Opening a
// new remote archive handle is slow, so handles are cached per archive
// location until ClearCache releases them.
func (f *S3Finder) archive(ctx context.Context, key string) (*remoteZip, error) {
	f.mu.Lock()
	if rz, ok := f.archives[key]; ok {
		f.mu.Unlock()
		return rz, nil
	}
	f.mu.Unlock()

	head, err := f.Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(f.Bucket), Key: aws.String(key)})
	if err != nil {
		return nil, errors.Wrapf(err, "heading s3 object %s", key)
	}
	size := aws.ToInt64(head.ContentLength)

	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", size-1)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "range-reading s3 object %s", key)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	rdr := bytes.NewReader(data)
	zr, err := zip.NewReader(rdr, size)
	if err != nil {
		return nil, errors.Wrapf(err, "opening remote zip %s", key)
	}

	rz := &remoteZip{key: key, size: size, reader: zr, data: rdr}
	f.mu.Lock()
	f.archives[key] = rz
	f.mu.Unlock()
	return rz, nil
}

func (f *S3Finder) readMember(ctx context.Context, key, member string) ([]byte, error) {
	rz, err := f.archive(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, zf := range rz.reader.File {
		if zf.Name != member {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("member %q not found in s3 object %s", member, key)
}

func (f *S3Finder) LoadDescriptor(loc Location) (*Descriptor, error) {
	ctx := context.Background()
	key := f.key(loc.Path)
	data, err := f.readMember(ctx, key, DescriptorFilename)
	if err != nil {
		return nil, err
	}
	var raw loader.RawDistro
	if err := loader.LoadJSON(data, &raw); err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(path.Base(loc.Path), ".zip")
	explicit := raw.Version
	if explicit == "" {
		if _, v, ok := versionForStem(stem); ok {
			explicit = v
		}
	}
	version := explicit
	if version == "" {
		return nil, &ErrInvalidVersion{Path: loc.Path}
	}
	return descriptorFromRaw(raw, version, loc)
}

func (f *S3Finder) Install(loc Location, dest string, replace bool) error {
	ctx := context.Background()
	key := f.key(loc.Path)
	rz, err := f.archive(ctx, key)
	if err != nil {
		return err
	}
	installed, err := f.Installed(dest)
	if err != nil {
		return err
	}
	if installed && !replace {
		return &ErrInstallDestinationExists{Dest: dest}
	}
	return extractZipReader(rz.reader, dest)
}

func (f *S3Finder) Installed(dest string) (bool, error) {
	return dirHasDescriptor(dest), nil
}

// ClearCache closes every cached remote-archive handle.
func (f *S3Finder) ClearCache(persistent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives = map[string]*remoteZip{}
}
