package search

import (
	"bytes"
	"context"
	"encoding/json"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/matching"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexDocument indexes one ingested procurement document. The document ID is
// the business identifier, so re-ingesting a document replaces its entry.
func (c *ElasticClient) IndexDocument(ctx context.Context, docType, identifier string, fields map[string]interface{}) error {
	doc := map[string]interface{}{
		"document_type": docType,
		"identifier":    identifier,
	}
	for k, v := range fields {
		doc[k] = v
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	if err := c.index(ctx, indexName, docType+":"+identifier, doc); err != nil {
		return err
	}

	log.Debug().Str("document_type", docType).Str("identifier", identifier).Msg("Document indexed")
	return nil
}

// IndexReconciliation indexes the match outcome for one PO identifier so the
// status is searchable alongside the documents
func (c *ElasticClient) IndexReconciliation(ctx context.Context, result *matching.Result) error {
	doc := map[string]interface{}{
		"document_type":  "reconciliation",
		"identifier":     result.PONumber,
		"po_number":      result.PONumber,
		"status":         string(result.Status),
		"issues":         result.Issues,
		"invoices":       len(result.Invoices),
		"goods_receipts": len(result.GoodsReceipts),
	}
	if result.PurchaseOrder != nil {
		doc["vendor_name"] = result.PurchaseOrder.Vendor.Name
		doc["buyer_name"] = result.PurchaseOrder.Buyer.Name
		doc["currency"] = result.PurchaseOrder.Currency
		doc["grand_total"] = result.PurchaseOrder.GrandTotal.InexactFloat64()
	}
	if result.Decision != nil {
		doc["decision"] = result.Decision.Decision
		doc["decided_by"] = result.Decision.DecidedBy
	}

	indexName := config.FormatIndex(c.config, "reconciliation")
	return c.index(ctx, indexName, result.PONumber, doc)
}

// SearchDocuments runs a free-text query across the indexed documents and
// reconciliation outcomes, returning the raw source documents.
func (c *ElasticClient) SearchDocuments(ctx context.Context, query string) ([]map[string]interface{}, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query": query,
				"fields": []string{
					"identifier^3",
					"po_number^2",
					"reference_po^2",
					"vendor_name",
					"buyer_name",
					"status",
					"issues",
				},
			},
		},
	}

	queryJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	// Search both the document index and the reconciliation index
	indices := []string{
		config.FormatIndex(c.config, c.config.Index),
		config.FormatIndex(c.config, "reconciliation"),
	}
	req := esapi.SearchRequest{
		Index:             indices,
		Body:              bytes.NewReader(queryJSON),
		IgnoreUnavailable: esapi.BoolPtr(true),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	// Extract the hits
	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}

// index executes a single document index request
func (c *ElasticClient) index(ctx context.Context, indexName, documentID string, doc map[string]interface{}) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document for indexing")
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: documentID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	return nil
}
