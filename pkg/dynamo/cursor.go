package dynamo

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
)

// Cursor reads matching items lazily. No request is made until a read method is called.
type Cursor struct {
	coll       *Collection
	filter     core.Document
	opts       core.Options
	projection core.Document

	mode readMode

	mu     sync.Mutex
	buffer []core.Document
	loaded bool
	pos    int
}

// readMode selects what a read request returns
type readMode int

const (
	readDocuments readMode = iota
	readCount
	readKeys
)

// readPlan is a compiled Query or Scan request
type readPlan struct {
	query      bool
	components expr.ExpressionComponents
}

// page is one response page of a Query or Scan
type page struct {
	items []map[string]types.AttributeValue
	count int32
}

// All returns every matching document after sort, skip, limit and projection
func (c *Cursor) All(ctx context.Context) ([]core.Document, error) {
	docs := make([]core.Document, 0)
	err := c.Each(ctx, func(doc core.Document) error {
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Next returns the next document. The result set is read on the first call.
func (c *Cursor) Next(ctx context.Context) (core.Document, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		docs, err := c.All(ctx)
		if err != nil {
			return nil, false, err
		}
		c.buffer = docs
		c.loaded = true
	}
	if c.pos >= len(c.buffer) {
		return nil, false, nil
	}
	doc := c.buffer[c.pos]
	c.pos++
	return doc, true, nil
}

// Count returns the number of matching items, ignoring limit and skip
func (c *Cursor) Count(ctx context.Context) (int64, error) {
	var total int64
	counter := &Cursor{coll: c.coll, filter: c.filter, mode: readCount}
	err := counter.pages(ctx, func(p page) bool {
		total += int64(p.count)
		return true
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Each pushes documents to fn. Without a sort, documents are pushed as pages
// arrive and reading stops once the limit is reached.
func (c *Cursor) Each(ctx context.Context, fn func(core.Document) error) error {
	proj := parseProjection(c.projection)
	skip := c.opts.SkipValue()
	limit := c.opts.LimitValue()

	if len(c.opts.Sort) > 0 {
		var (
			docs    []core.Document
			convErr error
		)
		err := c.pages(ctx, func(p page) bool {
			for _, item := range p.items {
				doc, err := c.coll.db.fromItem(item)
				if err != nil {
					convErr = err
					return false
				}
				docs = append(docs, doc)
			}
			return true
		})
		if err == nil {
			err = convErr
		}
		if err != nil {
			return err
		}
		sortDocuments(docs, c.opts.Sort)
		docs = window(docs, skip, limit)
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(proj.apply(doc)); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		seen    int64
		emitted int64
		fnErr   error
	)
	err := c.pages(ctx, func(p page) bool {
		for _, item := range p.items {
			if limit > 0 && emitted >= limit {
				return false
			}
			seen++
			if seen <= skip {
				continue
			}
			doc, err := c.coll.db.fromItem(item)
			if err != nil {
				fnErr = err
				return false
			}
			if err := fn(proj.apply(doc)); err != nil {
				fnErr = err
				return false
			}
			emitted++
		}
		return limit == 0 || emitted < limit
	})
	if err != nil {
		return err
	}
	return fnErr
}

// pages issues Query or Scan requests until the table is exhausted or fn returns false
func (c *Cursor) pages(ctx context.Context, fn func(page) bool) error {
	db := c.coll.db

	var startKey map[string]types.AttributeValue
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Builders are single use, so each page compiles a fresh plan
		plan, err := c.coll.plan(c.filter, c.projection, c.opts.Sort, c.mode)
		if err != nil {
			return err
		}
		if err := db.wait(ctx); err != nil {
			return err
		}

		var (
			p    page
			last map[string]types.AttributeValue
		)
		if plan.query {
			input := &dynamodb.QueryInput{
				TableName:                 aws.String(c.coll.name),
				KeyConditionExpression:    aws.String(plan.components.KeyConditionExpression),
				ExpressionAttributeNames:  plan.components.ExpressionAttributeNames,
				ExpressionAttributeValues: plan.components.ExpressionAttributeValues,
				ExclusiveStartKey:         startKey,
			}
			if plan.components.FilterExpression != "" {
				input.FilterExpression = aws.String(plan.components.FilterExpression)
			}
			if plan.components.ProjectionExpression != "" {
				input.ProjectionExpression = aws.String(plan.components.ProjectionExpression)
			}
			if c.mode == readCount {
				input.Select = types.SelectCount
			}
			out, err := db.client.Query(ctx, input)
			if err != nil {
				return err
			}
			p = page{items: out.Items, count: out.Count}
			last = out.LastEvaluatedKey
		} else {
			input := &dynamodb.ScanInput{
				TableName:                 aws.String(c.coll.name),
				ExpressionAttributeNames:  plan.components.ExpressionAttributeNames,
				ExpressionAttributeValues: plan.components.ExpressionAttributeValues,
				ExclusiveStartKey:         startKey,
			}
			if plan.components.FilterExpression != "" {
				input.FilterExpression = aws.String(plan.components.FilterExpression)
			}
			if plan.components.ProjectionExpression != "" {
				input.ProjectionExpression = aws.String(plan.components.ProjectionExpression)
			}
			if c.mode == readCount {
				input.Select = types.SelectCount
			}
			out, err := db.client.Scan(ctx, input)
			if err != nil {
				return err
			}
			p = page{items: out.Items, count: out.Count}
			last = out.LastEvaluatedKey
		}

		if !fn(p) || len(last) == 0 {
			return nil
		}
		startKey = last
	}
}

// window applies skip and limit to an ordered result set
func window(docs []core.Document, skip, limit int64) []core.Document {
	if skip >= int64(len(docs)) {
		return []core.Document{}
	}
	if skip > 0 {
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}
