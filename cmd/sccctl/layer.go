package main

// layer.go implements `sccctl layer publish`/`layer fetch`: moving a sealed
// layer file to and from S3 (or an S3-compatible endpoint). Client
// construction follows the usual pattern: static credentials when given,
// region/endpoint/path-style overrides, otherwise the SDK's own default
// credential chain.

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

func cmdLayer(cfg cliConfig, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sccctl layer <publish|fetch> ...")
		return 2
	}
	switch args[0] {
	case "publish":
		return cmdLayerPublish(cfg, args[1:])
	case "fetch":
		return cmdLayerFetch(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "sccctl: unknown layer subcommand %q\n", args[0])
		return 2
	}
}

func newS3Client(ctx context.Context, cfg cliConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	if key := os.Getenv("SCCCTL_S3_ACCESS_KEY_ID"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("SCCCTL_S3_SECRET_ACCESS_KEY"), "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.S3Endpoint) })
	}
	if cfg.S3ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func objectKey(cfg cliConfig, key string) string {
	if cfg.S3Prefix == "" {
		return key
	}
	return cfg.S3Prefix + "/" + key
}

func cmdLayerPublish(cfg cliConfig, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: sccctl layer publish <layer-path> <object-key>")
		return 2
	}
	if cfg.S3Bucket == "" {
		return fatalf("no s3_bucket configured")
	}
	path, key := args[0], args[1]

	f, err := os.Open(path)
	if err != nil {
		return fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fatalf("stat %s: %v", path, err)
	}

	ctx := context.Background()
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return fatalf("%v", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.S3Bucket),
		Key:    aws.String(objectKey(cfg, key)),
		Body:   f,
	})
	if err != nil {
		return fatalf("upload: %v", err)
	}
	fmt.Printf("published %s (%s) to s3://%s/%s\n", path, humanize.IBytes(uint64(info.Size())), cfg.S3Bucket, objectKey(cfg, key))
	return 0
}

func cmdLayerFetch(cfg cliConfig, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: sccctl layer fetch <object-key> <layer-path>")
		return 2
	}
	if cfg.S3Bucket == "" {
		return fatalf("no s3_bucket configured")
	}
	key, path := args[0], args[1]

	ctx := context.Background()
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return fatalf("%v", err)
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.S3Bucket),
		Key:    aws.String(objectKey(cfg, key)),
	})
	if err != nil {
		return fatalf("download: %v", err)
	}
	defer resp.Body.Close()

	out, err := os.Create(path)
	if err != nil {
		return fatalf("create %s: %v", path, err)
	}
	defer out.Close()

	n, err := out.ReadFrom(resp.Body)
	if err != nil {
		return fatalf("write %s: %v", path, err)
	}
	fmt.Printf("fetched s3://%s/%s (%s) to %s\n", cfg.S3Bucket, objectKey(cfg, key), humanize.IBytes(uint64(n)), path)
	return 0
}
