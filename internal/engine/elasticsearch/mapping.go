package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for catalog documents.
const DefaultIndexName = "catalog_products"

// buildIndexMapping returns the JSON mapping for the catalog index. Category
// levels and attribute tokens are keywords so they can be faceted with terms
// aggregations; name and label are analyzed text for keyword search.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "catalog_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":              { "type": "keyword" },
      "goodsname":       { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "goodslabel":      { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "goodsprice":      { "type": "double" },
      "goodstype1":      { "type": "keyword" },
      "goodstype2":      { "type": "keyword" },
      "goodstype3":      { "type": "keyword" },
      "goodsattributes": { "type": "keyword" },
      "goodspic":        { "type": "keyword", "index": false }
    }
  }
}`
}
