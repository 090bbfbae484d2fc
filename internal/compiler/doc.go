// Package compiler turns CUE entity declarations into ir entity types.
//
// A schema declares custom kinds and entity types:
//
//	kind: wikitext: "html"
//
//	entity: Page: {
//		versioned: true
//		unique: ["name"]
//		fields: {
//			id:      "auto"
//			name:    "text"
//			content: "wikitext"
//		}
//	}
//
//	entity: MapData: {
//		versioned: true
//		fields: {
//			id:     "auto"
//			page:   {kind: "relation", target: "Page", unique: true, related_name: "mapdata"}
//			points: "text"
//		}
//	}
//
// Field order follows declaration order. Compile errors carry CUE source
// positions; validation reports every problem at once.
package compiler
