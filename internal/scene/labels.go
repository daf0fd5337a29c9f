package scene

// PersonLabel is the only label counted as people.
const PersonLabel = "person"

// AnimalLabels are the COCO animal classes called out by name.
var AnimalLabels = map[string]bool{
	"dog": true, "cat": true, "bird": true, "horse": true, "sheep": true,
	"cow": true, "elephant": true, "bear": true, "zebra": true, "giraffe": true,
}

// PlantLabels are the classes reported as plants.
var PlantLabels = map[string]bool{
	"potted plant": true,
	"plant":        true,
	"tree":         true,
}

// MaxOthers caps how many unclassified labels are mentioned.
const MaxOthers = 3
