package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

type searchInput struct {
	Query  string         `json:"query" jsonschema:"required,Natural-language query to search for"`
	K      int            `json:"k,omitempty" jsonschema:"Maximum results to return (default: 10)"`
	Filter map[string]any `json:"filter,omitempty" jsonschema:"Metadata equality/membership filter, field name to value or list of values"`
}

type searchOutput struct {
	Results []vectorstore.SearchResult `json:"results" jsonschema:"Matches ordered by descending similarity score"`
	Count   int                        `json:"count" jsonschema:"Number of matches returned"`
}

type ingestInput struct {
	SourceID string         `json:"source_id" jsonschema:"required,Stable identifier for the document, chunk ids derive from it"`
	Text     string         `json:"text" jsonschema:"required,Full document text to chunk, embed, and store"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Metadata attached to every chunk"`
}

type ingestOutput struct {
	SourceID string   `json:"source_id" jsonschema:"Document identifier"`
	Chunks   int      `json:"chunks" jsonschema:"Number of chunks stored"`
	IDs      []string `json:"ids" jsonschema:"External ids of the stored chunks"`
}

type deleteInput struct {
	IDs    []string       `json:"ids,omitempty" jsonschema:"External ids to delete"`
	Filter map[string]any `json:"filter,omitempty" jsonschema:"Metadata filter selecting records to delete"`
}

type deleteOutput struct {
	Removed int64 `json:"removed" jsonschema:"Number of records removed"`
}

type statsOutput struct {
	Count               int64   `json:"count" jsonschema:"Total records"`
	UniqueEntities      int64   `json:"unique_entities" jsonschema:"Distinct source documents"`
	AvgRecordsPerEntity float64 `json:"avg_records_per_entity" jsonschema:"Average chunks per document"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Search the vector store for text semantically similar to a query, optionally constrained by a metadata filter.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk a document, embed each chunk, and store the chunks. Re-ingesting the same source_id replaces all of its chunks.",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_records",
		Description: "Delete records by external id or metadata filter.",
	}, s.handleDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "collection_stats",
		Description: "Report record counts for the active collection.",
	}, s.handleStats)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	var out searchOutput
	if args.Query == "" {
		return nil, out, fmt.Errorf("query is required")
	}

	vector, err := s.embedder.EmbedQuery(ctx, args.Query)
	if err != nil {
		return nil, out, fmt.Errorf("embedding query: %w", err)
	}

	err = s.workers.Do(ctx, "search", func(ctx context.Context) error {
		results, searchErr := s.store.Search(ctx, vector, args.K, args.Filter)
		if searchErr != nil {
			return searchErr
		}
		out.Results = results
		out.Count = len(results)
		return nil
	})
	if err != nil {
		return nil, out, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d results", out.Count)},
		},
	}, out, nil
}

func (s *Server) handleIngest(ctx context.Context, req *mcp.CallToolRequest, args ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	var out ingestOutput
	if args.SourceID == "" {
		return nil, out, fmt.Errorf("source_id is required")
	}
	if args.Text == "" {
		return nil, out, fmt.Errorf("text is required")
	}

	chunks, err := s.splitter.Split(args.Text)
	if err != nil {
		return nil, out, fmt.Errorf("chunking document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, out, fmt.Errorf("document %q produced no chunks", args.SourceID)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, out, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, out, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		metadata := make(map[string]any, len(args.Metadata)+2)
		for k, v := range args.Metadata {
			metadata[k] = v
		}
		metadata["source_id"] = args.SourceID
		metadata["chunk_index"] = chunk.Index
		records[i] = vectorstore.Record{
			ExternalID: vectorstore.LegacyExternalID(args.SourceID, chunk.Index),
			Document:   chunk.Text,
			Vector:     vectors[i],
			Metadata:   metadata,
		}
	}

	err = s.workers.Do(ctx, "ingest", func(ctx context.Context) error {
		// A shorter re-ingest must not leave chunks from the previous
		// version behind, so clear the document before writing.
		if _, delErr := s.store.Delete(ctx, nil, vectorstore.Filter{"source_id": args.SourceID}); delErr != nil {
			return fmt.Errorf("clearing previous chunks for %q: %w", args.SourceID, delErr)
		}
		ids, addErr := s.store.Add(ctx, records, vectorstore.ConflictUpdate)
		if addErr != nil {
			return addErr
		}
		out.IDs = ids
		return nil
	})
	if err != nil {
		return nil, out, err
	}

	out.SourceID = args.SourceID
	out.Chunks = len(chunks)
	s.logger.Info("document ingested",
		zap.String("source_id", args.SourceID),
		zap.Int("chunks", out.Chunks))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored %d chunks for %s", out.Chunks, args.SourceID)},
		},
	}, out, nil
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, args deleteInput) (*mcp.CallToolResult, deleteOutput, error) {
	var out deleteOutput
	if len(args.IDs) == 0 && len(args.Filter) == 0 {
		return nil, out, fmt.Errorf("ids or filter is required")
	}

	err := s.workers.Do(ctx, "delete", func(ctx context.Context) error {
		removed, delErr := s.store.Delete(ctx, args.IDs, args.Filter)
		if delErr != nil {
			return delErr
		}
		out.Removed = removed
		return nil
	})
	if err != nil {
		return nil, out, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Removed %d records", out.Removed)},
		},
	}, out, nil
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, statsOutput, error) {
	var out statsOutput
	err := s.workers.Do(ctx, "stats", func(ctx context.Context) error {
		stats, statsErr := s.store.Stats(ctx)
		if statsErr != nil {
			return statsErr
		}
		out.Count = stats.Count
		out.UniqueEntities = stats.UniqueEntities
		out.AvgRecordsPerEntity = stats.AvgRecordsPerEntity
		return nil
	})
	if err != nil {
		return nil, out, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d records across %d documents", out.Count, out.UniqueEntities)},
		},
	}, out, nil
}
