package s3repo

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"voice_verification/config"
	"voice_verification/entity"
)

const traceName = "S3-Repo"

// S3Repository keeps sounds as objects under {bucket}/{prefix}/{name}.
// PutObject replaces an object atomically, so the last upload wins.
type S3Repository struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Repository(cfg config.Storage) (*S3Repository, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}

	var awsCfg aws.Config
	if cfg.AccessKey != "" {
		awsCfg = aws.Config{
			Region:      cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		}
	} else {
		// no static keys: env, shared profile or instance role
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		region := cfg.Region
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(func(service, _ string, options ...any) (aws.Endpoint, error) {
			return aws.Endpoint{
				PartitionID:       "aws",
				SigningRegion:     region,
				URL:               endpoint,
				HostnameImmutable: true,
			}, nil
		})
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Repository{client: s3Client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Root, "/")}, nil
}

func (r *S3Repository) objectKey(name string) string {
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

func (r *S3Repository) Persist(ctx context.Context, src string, key entity.IdentityKey) (entity.StoredAudioFile, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Persist")
	defer span.End()

	name := entity.StoredName(key, filepath.Ext(src))
	if strings.ContainsAny(name, "/\\\x00") {
		return entity.StoredAudioFile{}, errors.Errorf("invalid stored name %q", name)
	}
	objectKey := r.objectKey(name)
	span.SetAttributes(attribute.String("bucket", r.bucket), attribute.String("key", objectKey))

	f, err := os.Open(src)
	if err != nil {
		return entity.StoredAudioFile{}, errors.Wrap(err, "open source")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return entity.StoredAudioFile{}, errors.Wrap(err, "stat source")
	}

	uploader := manager.NewUploader(r.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String(contentType(name)),
	})
	f.Close()
	if err != nil {
		return entity.StoredAudioFile{}, errors.Wrap(err, "upload object")
	}

	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return entity.StoredAudioFile{}, errors.Wrap(err, "remove source")
	}

	return entity.StoredAudioFile{
		Key:      key,
		Name:     name,
		Location: "s3://" + r.bucket + "/" + objectKey,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
	}, nil
}

func (r *S3Repository) List(ctx context.Context, userID string) ([]entity.StoredAudioFile, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "List")
	defer span.End()

	prefix := ""
	if r.prefix != "" {
		prefix = r.prefix + "/"
	}

	var out []entity.StoredAudioFile
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list objects")
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") || !entity.BelongsTo(name, userID) {
				continue
			}
			f := entity.StoredAudioFile{
				Key:      entity.IdentityKey{UserID: userID},
				Name:     name,
				Location: "s3://" + r.bucket + "/" + aws.ToString(obj.Key),
				Size:     obj.Size,
			}
			if obj.LastModified != nil {
				f.ModTime = *obj.LastModified
			}
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *S3Repository) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Open")
	defer span.End()

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(name)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	return out.Body, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
