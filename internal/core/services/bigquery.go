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

package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/tdontdon/fit5225/internal/core/model"
)

const qryFindTagRecord = "SELECT url, type, filename, tags, thumbnail_name, thumbnail_url FROM `%s` WHERE url = @url AND type = @type LIMIT 1"

// bigQueryTagRow is the table layout. Counts are NUMERIC so the read path
// sees arbitrary precision values just as with DynamoDB.
type bigQueryTagRow struct {
	URL           string              `bigquery:"url"`
	Type          string              `bigquery:"type"`
	Filename      string              `bigquery:"filename"`
	Tags          []bigQueryTagCount  `bigquery:"tags"`
	ThumbnailName bigquery.NullString `bigquery:"thumbnail_name"`
	ThumbnailURL  bigquery.NullString `bigquery:"thumbnail_url"`
}

type bigQueryTagCount struct {
	Label string   `bigquery:"label"`
	Count *big.Rat `bigquery:"count"`
}

// BigQueryRecordStore keeps Tag Records in a BigQuery table.
type BigQueryRecordStore struct {
	client  *bigquery.Client
	dataset string
	table   string
}

func NewBigQueryRecordStore(client *bigquery.Client, dataset string, table string) *BigQueryRecordStore {
	return &BigQueryRecordStore{client: client, dataset: dataset, table: table}
}

// GetFQN returns the table name in the dotted form used by standard SQL.
func (s *BigQueryRecordStore) GetFQN() string {
	fqn := s.client.Dataset(s.dataset).Table(s.table).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

func (s *BigQueryRecordStore) GetRecord(ctx context.Context, url string, mediaType model.MediaType) (map[string]interface{}, bool, error) {
	q := s.client.Query(fmt.Sprintf(qryFindTagRecord, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "url", Value: url},
		{Name: "type", Value: string(mediaType)},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("bigquery query %s: %w", s.table, err)
	}

	var row bigQueryTagRow
	err = itr.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bigquery read %s: %w", s.table, err)
	}
	return row.toMap(), true, nil
}

func (s *BigQueryRecordStore) PutRecord(ctx context.Context, record *model.TagRecord) (*model.WriteAck, error) {
	row := newBigQueryTagRow(record)
	schema, err := bigquery.InferSchema(row)
	if err != nil {
		return nil, err
	}
	saver := &bigquery.StructSaver{
		Schema:   schema,
		InsertID: fmt.Sprintf("%s|%s", record.URL, record.Type),
		Struct:   row,
	}
	if err := s.client.Dataset(s.dataset).Table(s.table).Inserter().Put(ctx, saver); err != nil {
		return nil, fmt.Errorf("bigquery insert %s: %w", s.table, err)
	}
	return &model.WriteAck{Store: "bigquery", Table: s.GetFQN()}, nil
}

func newBigQueryTagRow(record *model.TagRecord) bigQueryTagRow {
	row := bigQueryTagRow{
		URL:           record.URL,
		Type:          string(record.Type),
		Filename:      record.Filename,
		Tags:          make([]bigQueryTagCount, 0, len(record.Tags)),
		ThumbnailName: nullString(record.ThumbnailName),
		ThumbnailURL:  nullString(record.ThumbnailURL),
	}
	for label, count := range record.Tags {
		row.Tags = append(row.Tags, bigQueryTagCount{Label: label, Count: big.NewRat(int64(count), 1)})
	}
	return row
}

// toMap returns the row keyed by the record's attribute names.
func (r bigQueryTagRow) toMap() map[string]interface{} {
	tags := make(map[string]interface{}, len(r.Tags))
	for _, t := range r.Tags {
		tags[t.Label] = t.Count
	}
	return map[string]interface{}{
		"url":            r.URL,
		"type":           r.Type,
		"filename":       r.Filename,
		"tags":           tags,
		"thumbnail-name": nullValue(r.ThumbnailName),
		"thumbnail-url":  nullValue(r.ThumbnailURL),
	}
}

func nullString(in *string) bigquery.NullString {
	if in == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *in, Valid: true}
}

func nullValue(in bigquery.NullString) interface{} {
	if !in.Valid {
		return nil
	}
	return in.StringVal
}
