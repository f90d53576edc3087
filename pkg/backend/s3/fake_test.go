package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	data     []byte
	mtime    time.Time
	metadata map[string]string
}

// fakeAPI is an in-memory S3 serving a fixed set of buckets.
type fakeAPI struct {
	mu       sync.Mutex
	buckets  map[string]map[string]*fakeObject
	pageSize int
	calls    map[string]int
	ranges   []string
	failNext error
}

func newFakeAPI(buckets ...string) *fakeAPI {
	f := &fakeAPI{
		buckets:  make(map[string]map[string]*fakeObject),
		pageSize: 1000,
		calls:    make(map[string]int),
	}
	for _, b := range buckets {
		f.buckets[b] = make(map[string]*fakeObject)
	}
	return f
}

func (f *fakeAPI) put(bucket, key, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket][key] = &fakeObject{data: []byte(data), mtime: time.Now()}
}

func (f *fakeAPI) object(bucket, key string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.buckets[bucket][key]
	return o, ok
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// begin records a call and returns an injected failure, if any.
// Must be called with f.mu held.
func (f *fakeAPI) begin(op string) error {
	f.calls[op]++
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeAPI) bucket(name string) (map[string]*fakeObject, error) {
	b, ok := f.buckets[name]
	if !ok {
		return nil, &types.NoSuchBucket{Message: aws.String("no such bucket")}
	}
	return b, nil
}

func (f *fakeAPI) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("HeadBucket"); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("HeadObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	o, ok := b[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		LastModified:  aws.Time(o.mtime),
		Metadata:      o.metadata,
	}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	o, ok := b[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	data := o.data
	if r := aws.ToString(in.Range); r != "" {
		f.ranges = append(f.ranges, r)
		var start, end int
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil || start >= len(data) {
			return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: r}
		}
		end = min(end, len(data)-1)
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(o.mtime),
	}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b[aws.ToString(in.Key)] = &fakeObject{data: data, mtime: time.Now(), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListObjectsV2"); err != nil {
		return nil, err
	}
	b, err := f.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}

	prefix, delim := aws.ToString(in.Prefix), aws.ToString(in.Delimiter)
	limit := f.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}

	keys := make([]string, 0, len(b))
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// Collapse keys below the delimiter into common prefixes.
	type item struct {
		name   string
		prefix bool
	}
	var items []item
	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+len(delim)]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{name: cp, prefix: true})
				}
				continue
			}
		}
		items = append(items, item{name: k})
	}

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := min(start+limit, len(items))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(items))}
	for _, it := range items[start:end] {
		if it.prefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(it.name)})
			continue
		}
		o := b[it.name]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(it.name),
			Size:         aws.Int64(int64(len(o.data))),
			LastModified: aws.Time(o.mtime),
		})
	}
	if end < len(items) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
