// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"reflect"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// DocWriteRequest is implemented by requests that write a single document.
// Custom esapi.Request implementations can satisfy it to get the
// elasticsearch.request.write.* attributes.
type DocWriteRequest interface {
	// WriteType is the write operation: index, create, update or delete.
	WriteType() string
	WriteRouting() (string, bool)
	WriteVersion() (int64, bool)
}

type docWrite struct {
	writeType string
	routing   string
	version   *int
}

func (d docWrite) WriteType() string {
	return d.writeType
}

func (d docWrite) WriteRouting() (string, bool) {
	return d.routing, d.routing != ""
}

func (d docWrite) WriteVersion() (int64, bool) {
	if d.version == nil {
		return 0, false
	}
	return int64(*d.version), true
}

// AsDocWriteRequest reports whether req writes a single document and, if so,
// returns its write description. Nil pointers are not write requests.
func AsDocWriteRequest(req esapi.Request) (DocWriteRequest, bool) {
	switch r := req.(type) {
	case DocWriteRequest:
		if isNilPointer(r) {
			return nil, false
		}
		return r, true
	case esapi.IndexRequest:
		return indexWrite(&r), true
	case *esapi.IndexRequest:
		if r != nil {
			return indexWrite(r), true
		}
	case esapi.CreateRequest:
		return createWrite(&r), true
	case *esapi.CreateRequest:
		if r != nil {
			return createWrite(r), true
		}
	case esapi.UpdateRequest:
		return docWrite{writeType: "update", routing: r.Routing}, true
	case *esapi.UpdateRequest:
		if r != nil {
			return docWrite{writeType: "update", routing: r.Routing}, true
		}
	case esapi.DeleteRequest:
		return deleteWrite(&r), true
	case *esapi.DeleteRequest:
		if r != nil {
			return deleteWrite(r), true
		}
	}
	return nil, false
}

func indexWrite(r *esapi.IndexRequest) docWrite {
	writeType := r.OpType
	if writeType == "" {
		writeType = "index"
	}
	return docWrite{writeType: writeType, routing: r.Routing, version: r.Version}
}

func createWrite(r *esapi.CreateRequest) docWrite {
	return docWrite{writeType: "create", routing: r.Routing, version: r.Version}
}

func deleteWrite(r *esapi.DeleteRequest) docWrite {
	return docWrite{writeType: "delete", routing: r.Routing, version: r.Version}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
