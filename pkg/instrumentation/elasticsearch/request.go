// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"
)

// maxDecodedBodySize bounds the response bodies inspected for document
// metadata. Larger bodies are passed through untouched.
const maxDecodedBodySize = 64 << 10

// TransportRequest is one Elasticsearch API call.
type TransportRequest struct {
	// Action is the API name, e.g. "index" or "indices_create".
	Action  string
	Request esapi.Request
	// ServerAddress and ServerPort take precedence over URL.
	ServerAddress string
	ServerPort    int
	URL           string
}

// ShardInfo mirrors the _shards section of a write response.
type ShardInfo struct {
	Total      int64
	Successful int64
	Failed     int64
}

// TransportResponse holds what is known about the response of a call.
type TransportResponse struct {
	StatusCode int
	ID         string
	Version    int64
	Result     string
	Shards     ShardInfo
}

func newTransportRequest(req esapi.Request, url string) TransportRequest {
	return TransportRequest{
		Action:  actionName(req),
		Request: req,
		URL:     url,
	}
}

// requestName returns the Go type name of req without its package.
func requestName(req esapi.Request) string {
	if req == nil {
		return ""
	}
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// actionName converts an esapi request type name into an API name:
// IndicesCreateRequest becomes indices_create.
func actionName(req esapi.Request) string {
	name := strings.TrimSuffix(requestName(req), "Request")
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// requestIndices lists the target indices of the common request variants.
func requestIndices(req esapi.Request) []string {
	switch r := req.(type) {
	case esapi.IndexRequest:
		return nonEmpty(r.Index)
	case *esapi.IndexRequest:
		if r != nil {
			return nonEmpty(r.Index)
		}
	case esapi.CreateRequest:
		return nonEmpty(r.Index)
	case *esapi.CreateRequest:
		if r != nil {
			return nonEmpty(r.Index)
		}
	case esapi.UpdateRequest:
		return nonEmpty(r.Index)
	case *esapi.UpdateRequest:
		if r != nil {
			return nonEmpty(r.Index)
		}
	case esapi.DeleteRequest:
		return nonEmpty(r.Index)
	case *esapi.DeleteRequest:
		if r != nil {
			return nonEmpty(r.Index)
		}
	case esapi.GetRequest:
		return nonEmpty(r.Index)
	case *esapi.GetRequest:
		if r != nil {
			return nonEmpty(r.Index)
		}
	case esapi.SearchRequest:
		return r.Index
	case *esapi.SearchRequest:
		if r != nil {
			return r.Index
		}
	}
	return nil
}

func nonEmpty(index string) []string {
	if index == "" {
		return nil
	}
	return []string{index}
}

type bodyReadCloser struct {
	io.Reader
	io.Closer
}

// newTransportResponse decodes the document metadata of res. The body is
// restored so the caller can still read it in full.
func newTransportResponse(res *esapi.Response) (TransportResponse, error) {
	out := TransportResponse{}
	if res == nil {
		return out, nil
	}
	out.StatusCode = res.StatusCode
	if res.Body == nil {
		return out, nil
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxDecodedBodySize+1))
	res.Body = bodyReadCloser{Reader: io.MultiReader(bytes.NewReader(body), res.Body), Closer: res.Body}
	if err != nil {
		return out, err
	}
	if len(body) > maxDecodedBodySize || !gjson.ValidBytes(body) {
		return out, nil
	}
	fields := gjson.GetManyBytes(body, "_id", "_version", "result",
		"_shards.total", "_shards.successful", "_shards.failed")
	out.ID = fields[0].String()
	out.Version = fields[1].Int()
	out.Result = fields[2].String()
	out.Shards = ShardInfo{
		Total:      fields[3].Int(),
		Successful: fields[4].Int(),
		Failed:     fields[5].Int(),
	}
	return out, nil
}
