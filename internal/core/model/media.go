// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model holds the data shared by every stage of the tagging pipeline:
// the media classification rules, the persisted Tag Record, the request and
// envelope exchanged between the intake and tagging stages, and the typed
// pipeline error.
package model

import (
	"fmt"
	"path"
	"strings"
)

// MediaType is the classification of an uploaded object, persisted as the
// record's sort key.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// ThumbnailSuffix is appended to the extension-less key of an image to name
// its thumbnail.
const ThumbnailSuffix = "-thumb.jpg"

var extensionTypes = map[string]MediaType{
	"jpg":  MediaTypeImage,
	"jpeg": MediaTypeImage,
	"png":  MediaTypeImage,
	"mp4":  MediaTypeVideo,
	"mov":  MediaTypeVideo,
	"avi":  MediaTypeVideo,
	"mkv":  MediaTypeVideo,
}

// Extension returns the lowercased text after the last dot of key, or "" when
// the final path element has no dot.
func Extension(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ClassifyKey maps the extension of key to a MediaType. Anything outside the
// known image and video extensions is rejected with an unsupported_media error.
func ClassifyKey(key string) (MediaType, error) {
	if t, ok := extensionTypes[Extension(key)]; ok {
		return t, nil
	}
	return "", NewPipelineError(ErrKindUnsupportedMedia, "classify",
		fmt.Errorf("unsupported file extension %q for object %q", Extension(key), key))
}

// ParseMediaType validates a type received over the wire.
func ParseMediaType(in string) (MediaType, error) {
	switch MediaType(in) {
	case MediaTypeImage, MediaTypeVideo:
		return MediaType(in), nil
	}
	return "", NewPipelineError(ErrKindInvalidRequest, "parse_media_type",
		fmt.Errorf("unknown media type %q", in))
}

// ObjectLocation is the derived addressing information for one upload.
type ObjectLocation struct {
	Bucket       string
	Key          string
	Type         MediaType
	URL          string
	ThumbnailKey *string // nil for video
	ThumbnailURL *string // nil for video
}

// ObjectURL builds the public virtual-hosted URL of key in bucket.
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// ThumbnailKey names the thumbnail of key: the key without its extension
// followed by ThumbnailSuffix.
func ThumbnailKey(key string) string {
	return strings.TrimSuffix(key, path.Ext(key)) + ThumbnailSuffix
}

// URLFunc returns the public address of key in bucket.
type URLFunc func(bucket, key string) string

// RegionalURL returns the URLFunc addressing objects in an S3 region.
func RegionalURL(region string) URLFunc {
	return func(bucket, key string) string {
		return ObjectURL(bucket, region, key)
	}
}

// Locate classifies key and derives the URLs used for caching and storage.
// Thumbnail fields are only populated for images.
func Locate(bucket, key string, publicURL URLFunc) (*ObjectLocation, error) {
	mediaType, err := ClassifyKey(key)
	if err != nil {
		return nil, err
	}
	loc := &ObjectLocation{
		Bucket: bucket,
		Key:    key,
		Type:   mediaType,
		URL:    publicURL(bucket, key),
	}
	if mediaType == MediaTypeImage {
		thumbKey := ThumbnailKey(key)
		thumbURL := publicURL(bucket, thumbKey)
		loc.ThumbnailKey = &thumbKey
		loc.ThumbnailURL = &thumbURL
	}
	return loc, nil
}

// UploadEvent is a normalized object-created notification. Key is already
// URL decoded. Region is empty for stores that are not regional.
type UploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Region string `json:"region,omitempty"`
}
