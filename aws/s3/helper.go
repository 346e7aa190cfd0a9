package s3

import (
	"fmt"
	"net/url"
	"strings"
)

// Bucket locates the raw archive.
type Bucket struct {
	Name   string `errorTxt:"bucket name" mandatory:"yes"`
	Prefix string `errorTxt:"bucket prefix"`
	Region string `errorTxt:"bucket region" mandatory:"yes"`
}

func (b Bucket) String() string {
	if b.Prefix == "" {
		return fmt.Sprintf("s3://%v", b.Name)
	}
	return fmt.Sprintf("s3://%v/%v", b.Name, b.Prefix)
}

// ParseURL expects bucketPrefix to be of the form [s3://]<bucket>/<prefix>
// It returns a Bucket populated with the components of bucketPrefix and the supplied region.
func ParseURL(bucketPrefix string, region string) (retval Bucket, err error) {
	expectedScheme := "s3"
	if !strings.Contains(bucketPrefix, "://") {
		bucketPrefix = expectedScheme + "://" + bucketPrefix
	}
	s3url, err := url.Parse(bucketPrefix)
	if err != nil {
		return retval, fmt.Errorf("error parsing S3 URL: %v", err)
	}
	if s3url.Scheme != expectedScheme {
		return retval, fmt.Errorf("expected S3 URL scheme %q but got %q", expectedScheme, s3url.Scheme)
	}
	if region == "" {
		return retval, fmt.Errorf("value expected for bucket region")
	}
	retval.Name = s3url.Host
	if retval.Name == "" {
		return retval, fmt.Errorf("failed to parse bucket name from %q", bucketPrefix)
	}
	retval.Prefix = strings.Trim(s3url.Path, "/")
	retval.Region = region
	return
}
