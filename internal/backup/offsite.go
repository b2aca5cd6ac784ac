package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"filippo.io/age"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API - часть клиента S3, нужная для offsite-копий.
type s3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config - параметры S3-совместимого хранилища.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
	// AgeRecipient - X25519-получатель age; пусто - без шифрования.
	AgeRecipient string
}

// Offsite копирует файлы бэкапов в S3, при наличии получателя
// предварительно шифруя их age.
type Offsite struct {
	client    s3API
	bucket    string
	prefix    string
	recipient age.Recipient
	logger    *slog.Logger
}

// NewOffsite создаёт offsite-хранилище.
func NewOffsite(cfg S3Config, logger *slog.Logger) (*Offsite, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newOffsite(s3.New(opts), cfg, logger)
}

func newOffsite(client s3API, cfg S3Config, logger *slog.Logger) (*Offsite, error) {
	o := &Offsite{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With(slog.String("component", "offsite")),
	}
	if cfg.AgeRecipient != "" {
		r, err := age.ParseX25519Recipient(cfg.AgeRecipient)
		if err != nil {
			return nil, fmt.Errorf("некорректный age-получатель: %w", err)
		}
		o.recipient = r
	}
	return o, nil
}

// Upload загружает файлы копии backupID и возвращает префикс ключей
// в бакете. Ключ файла: <prefix>/<backupID>/<имя файла>[.age].
func (o *Offsite) Upload(ctx context.Context, backupID string, files ...string) (string, error) {
	keyPrefix := path.Join(o.prefix, backupID)
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := o.uploadFile(ctx, keyPrefix, f); err != nil {
			return "", err
		}
	}
	o.logger.Info("Offsite-копия загружена",
		slog.String("backup_id", backupID),
		slog.String("key", keyPrefix),
	)
	return keyPrefix, nil
}

func (o *Offsite) uploadFile(ctx context.Context, keyPrefix, file string) error {
	src := file
	name := filepath.Base(file)

	if o.recipient != nil {
		enc, err := o.encrypt(file)
		if err != nil {
			return err
		}
		defer os.Remove(enc)
		src = enc
		name += ".age"
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ошибка stat %s: %w", src, err)
	}

	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.bucket),
		Key:           aws.String(path.Join(keyPrefix, name)),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return fmt.Errorf("ошибка загрузки в S3: %w", err)
	}
	return nil
}

// encrypt шифрует файл во временный и возвращает его путь.
func (o *Offsite) encrypt(file string) (string, error) {
	in, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия %s: %w", file, err)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "concursos-backup-*.age")
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	w, err := age.Encrypt(out, o.recipient)
	if err == nil {
		_, err = io.Copy(w, in)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("ошибка шифрования %s: %w", filepath.Base(file), err)
	}
	return out.Name(), nil
}

// Delete удаляет offsite-файлы копии.
func (o *Offsite) Delete(ctx context.Context, keyPrefix string, files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		name := filepath.Base(f)
		if o.recipient != nil {
			name += ".age"
		}
		_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(path.Join(keyPrefix, name)),
		})
		if err != nil {
			return fmt.Errorf("ошибка удаления из S3: %w", err)
		}
	}
	return nil
}
