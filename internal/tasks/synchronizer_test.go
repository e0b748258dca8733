package tasks

import "testing"

func sampleList() []Task {
	return []Task{
		{TaskID: "t1", Status: "running", Progress: 40},
		{TaskID: "t2", Status: "completed", ResultURL: "https://x/t2.png"},
	}
}

func TestHasChanged_IdenticalLists(t *testing.T) {
	list := sampleList()
	if HasChanged(list, list) {
		t.Fatal("same reference reported as changed")
	}
	if HasChanged(list, sampleList()) {
		t.Fatal("deep-identical copy reported as changed")
	}
}

func TestHasChanged_StatusChange(t *testing.T) {
	oldList := sampleList()
	newList := sampleList()
	newList[0].Status = "completed"
	if !HasChanged(oldList, newList) {
		t.Fatal("status change not detected")
	}
}

func TestHasChanged_CaseOnlyStatusChangeIgnored(t *testing.T) {
	oldList := sampleList()
	newList := sampleList()
	newList[0].Status = "RUNNING"
	if HasChanged(oldList, newList) {
		t.Fatal("case-only status change should compare equal")
	}
}

func TestHasChanged_LengthAndMembership(t *testing.T) {
	oldList := sampleList()
	if !HasChanged(oldList, oldList[:1]) {
		t.Fatal("shorter list not detected")
	}
	swapped := sampleList()
	swapped[1].TaskID = "t3"
	if !HasChanged(oldList, swapped) {
		t.Fatal("replaced task id not detected")
	}
}

func TestHasChanged_ImageAndErrorFields(t *testing.T) {
	oldList := sampleList()

	withImage := sampleList()
	withImage[0].Images = []string{"https://x/t1-partial.png"}
	if !HasChanged(oldList, withImage) {
		t.Fatal("new image url not detected")
	}

	withErr := sampleList()
	withErr[0].Status = "failed"
	withErr[0].ErrorMessage = "workflow crashed"
	if !HasChanged(oldList, withErr) {
		t.Fatal("error message not detected")
	}
}

func TestUpdateSeamlessly_KeepsOldReferenceWhenUnchanged(t *testing.T) {
	oldList := sampleList()
	changed, updated := UpdateSeamlessly(oldList, sampleList())
	if changed {
		t.Fatal("unchanged list reported changed")
	}
	if &updated[0] != &oldList[0] {
		t.Fatal("old slice reference not preserved")
	}

	newList := sampleList()
	newList[1].ResultURL = "https://x/t2-v2.png"
	changed, updated = UpdateSeamlessly(oldList, newList)
	if !changed {
		t.Fatal("changed list reported unchanged")
	}
	if &updated[0] != &newList[0] {
		t.Fatal("new slice not returned on change")
	}
}

func TestHasChanged_ToleratesSparseEntries(t *testing.T) {
	oldList := []Task{{TaskID: "t1"}}
	newList := []Task{{TaskID: "t1", Status: ""}}
	if HasChanged(oldList, newList) {
		t.Fatal("two empty-status entries should compare equal")
	}
}
