package domain

// PlannedItem 是下载前的确定性规划结果（只描述目标与现状，不做任何写入）。
type PlannedItem struct {
	Entry CatalogEntry

	// Filename 是清洗后的文件名；Dest = OutputRoot/Filename。
	Filename string
	Dest     string

	// Exists 表示目标路径上已有普通文件（下载阶段会直接 skipped）。
	Exists bool
	Size   int64

	// Conflict 非空表示目标路径被非普通文件占用（例如目录）。
	Conflict string

	// Collision 表示另一个条目清洗后得到了同一个文件名。
	Collision bool
}
