// Package bimgraph provides:
//
// - A schema-aware object layer over building-information-model graphs (Entity, Graph)
// - One canonical Entity per record identity, with lazily resolved references and computed inverse attributes
// - Validation of raw attribute data against a schema.Definition (ValidateData)
// - Identity-preserving tree/JSON documents with {"$ref": token} back-edges (ToDict/ToJSON/FromJSON)
// - Containment traversal and flat-index queries over a loaded graph
//
// Design policy:
// - Keep only public APIs in the root package; put detailed implementations under internal/.
// - Schemas live in schema/, geometry digests in mesh/, encodings in codec/, persistence in store/ and the CLI under cmd/bimgraph.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	def, err := schema.Load("ifc4.yaml")
//	g, err := bimgraph.Load(ctx, def, bimgraph.NewJSONRecordSource(f), bimgraph.LoadOpt{Validate: true})
//	wall, err := g.GetEntityByGlobalID("2O2Fr$t4X7Zf8NOew3FLOH")
//	doc, err := wall.ToJSON(bimgraph.JSONOpt{Pretty: true})
//	back, err := bimgraph.FromJSON(def, doc)
package bimgraph
