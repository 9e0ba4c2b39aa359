// Package offsets holds the record layouts and world locations of the
// supported target.
package offsets

import (
	"github.com/sarchlab/memsync/layout"
)

// ObjectKinds names the kind byte of an actor.
var ObjectKinds = layout.NewEnumSet("ObjectKind", map[uint32]string{
	0x00: "None",
	0x01: "Player",
	0x02: "BattleNpc",
	0x03: "EventNpc",
	0x04: "Treasure",
	0x05: "Aetheryte",
	0x06: "GatheringPoint",
	0x07: "EventObj",
	0x08: "Mount",
	0x09: "Companion",
	0x0A: "Retainer",
	0x0B: "Area",
	0x0C: "Housing",
	0x0D: "Cutscene",
	0x0E: "CardStand",
})

// RenderModes names the render mode of an actor. Writing Unload and then Draw
// makes the target rebuild the actor model.
var RenderModes = layout.NewEnumSet("RenderMode", map[uint32]string{
	0: "Draw",
	2: "Unload",
})

// Genders names the gender byte of an appearance.
var Genders = layout.NewEnumSet("Gender", map[uint32]string{
	0: "Masculine",
	1: "Feminine",
})

// Races names the race byte of an appearance.
var Races = layout.NewEnumSet("Race", map[uint32]string{
	1: "Hyur",
	2: "Elezen",
	3: "Lalafel",
	4: "Miqote",
	5: "Roegadyn",
	6: "AuRa",
	7: "Hrothgar",
	8: "Viera",
})

// Weapon is a weapon model slot.
var Weapon = layout.MakeBuilder("Weapon").
	WithUint("Set", 0x00, 2).
	WithUint("Base", 0x02, 2).
	WithUint("Variant", 0x04, 2).
	WithUint("Dye", 0x06, 1).
	WithSpan(0x68).
	MustBuild()

// Item is an equipment model slot.
var Item = layout.MakeBuilder("Item").
	WithUint("Base", 0x00, 2).
	WithUint("Variant", 0x02, 1).
	WithUint("Dye", 0x03, 1).
	MustBuild()

// Equipment holds the ten gear slots in the order the target stores them.
var Equipment = equipment()

func equipment() *layout.Layout {
	b := layout.MakeBuilder("Equipment")
	for i, slot := range []string{
		"Head", "Chest", "Arms", "Legs", "Feet",
		"Ear", "Neck", "Wrist", "RFinger", "LFinger",
	} {
		b = b.WithRecord(slot, uint64(i)*4, Item)
	}

	return b.MustBuild()
}

// Appearance is the customize block, one byte per feature.
var Appearance = appearance()

func appearance() *layout.Layout {
	b := layout.MakeBuilder("Appearance").
		WithEnum("Race", 0x00, 1, Races).
		WithEnum("Gender", 0x01, 1, Genders)

	for i, feature := range []string{
		"Age", "Height", "Tribe", "Head", "Hair", "EnableHighlights",
		"Skintone", "REyeColor", "HairTone", "Highlights", "FacialFeatures",
		"LimbalEyes", "Eyebrows", "LEyeColor", "Eyes", "Nose", "Jaw", "Mouth",
		"LipsToneFurPattern", "EarMuscleTailSize", "TailEarsType", "Bust",
		"FacePaint", "FacePaintColor",
	} {
		b = b.WithUint(feature, uint64(i)+2, 1)
	}

	return b.MustBuild()
}

// Transform is the model transform an actor points to.
var Transform = layout.MakeBuilder("Transform").
	WithVector3("Position", 0x00).
	WithQuaternion("Rotation", 0x10).
	WithVector3("Scale", 0x20).
	MustBuild()

// TransformDeref is added to the transform pointer of an actor.
const TransformDeref = 0x50

// Actor is an entry of the actor table.
var Actor = layout.MakeBuilder("Actor").
	WithText("Name", 0x0030, 30).
	WithInt("ActorId", 0x0074, 4).
	WithInt("DataId", 0x0080, 4).
	WithInt("OwnerId", 0x0084, 4).
	WithEnum("ObjectKind", 0x008C, 1, ObjectKinds).
	WithUint("SubKind", 0x008D, 1).
	WithBool("IsFriendly", 0x008E).
	WithUint("PlayerTargetStatus", 0x0091, 1).
	WithVector3("Position", 0x00A0).
	WithFloat32("Rotation", 0x00B0).
	WithPointer("Transform", 0x00F0, Transform, TransformDeref).
	WithEnum("RenderMode", 0x0104, 4, RenderModes).
	WithInt("PlayerCharacterTargetActorId", 0x01F0, 4).
	WithRecord("MainHand", 0x1450, Weapon).
	WithRecord("OffHand", 0x14B8, Weapon).
	WithRecord("Equipment", 0x1708, Equipment).
	WithRecord("Customize", 0x17B8, Appearance).
	WithInt("BattleNpcTargetActorId", 0x17F8, 4).
	WithInt("NameId", 0x1868, 4).
	WithInt("ModelType", 0x1888, 4).
	MustBuild()

// Layouts returns the built-in layouts by name.
func Layouts() map[string]*layout.Layout {
	return map[string]*layout.Layout{
		Actor.Name():      Actor,
		Weapon.Name():     Weapon,
		Item.Name():       Item,
		Equipment.Name():  Equipment,
		Appearance.Name(): Appearance,
		Transform.Name():  Transform,
	}
}
