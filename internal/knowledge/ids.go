package knowledge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// ID namespaces for deterministic UUIDv5 generation. Deterministic IDs make
// re-indexing overwrite in place and let chunk IDs be enumerated from a
// document's chunk count without a list query.
var (
	documentNamespace = uuid.MustParse("6f1c35f2-9a41-4f6e-8c59-2d9b1f7e0a11")
	chunkNamespace    = uuid.MustParse("a3d86e77-52be-4ad1-b0fd-7c04c5e3d922")
)

// DocumentID derives the deterministic ID for a tenant's document path.
func DocumentID(tc tenant.Context, path string) string {
	key := fmt.Sprintf("%s|%s|%s|%s", tc.Project, tc.Branch, tc.WorkspaceHash, path)
	return uuid.NewSHA1(documentNamespace, []byte(key)).String()
}

// ChunkID derives the deterministic ID for a chunk of a tenant's document.
func ChunkID(tc tenant.Context, path string, index int) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%d", tc.Project, tc.Branch, tc.WorkspaceHash, path, index)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}
