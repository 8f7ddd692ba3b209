package store

import "github.com/ers-go/ers/docdb"

// indexViews defines the two MapReduce views shared by the three data
// scopes, keyed off the @id field the document model carries rather
// than a composite "<graph> <subject>" key.
var indexViews = map[string]docdb.View{
	"by_entity": {
		Map: `function(doc) {
			if (doc['@id'] && !doc._deleted) {
				emit(doc['@id'], doc._rev);
			} else if (doc['@id'] && doc._deleted) {
				emit(doc['@id'], null);
			}
		}`,
	},
	"by_property_value": {
		Map: `function(doc) {
			if (doc._deleted || !doc['@id']) { return; }
			for (var key in doc) {
				if (key.charAt(0) === '_' || key.charAt(0) === '@') { continue; }
				var values = doc[key];
				if (!Array.isArray(values)) { values = [values]; }
				for (var i = 0; i < values.length; i++) {
					emit([key, values[i]], doc['@id']);
				}
			}
		}`,
	},
}
