package tasks

import "strings"

// HasChanged compares two task-list snapshots on the fields a list view
// renders. Lists of different lengths differ immediately; otherwise tasks
// are matched by id and compared field by field. A task present in the new
// list but absent from the old counts as a change.
func HasChanged(oldList, newList []Task) bool {
	if len(oldList) != len(newList) {
		return true
	}
	oldByID := tasksByID(oldList)
	for _, task := range newList {
		prev, ok := oldByID[strings.TrimSpace(task.TaskID)]
		if !ok {
			return true
		}
		if taskContentChanged(prev, task) {
			return true
		}
	}
	return false
}

// UpdateSeamlessly returns the list a view should render. When nothing
// observable changed it hands back the old slice unchanged, so callers can
// skip re-renders on reference equality.
func UpdateSeamlessly(oldList, newList []Task) (bool, []Task) {
	if !HasChanged(oldList, newList) {
		return false, oldList
	}
	return true, newList
}

func tasksByID(list []Task) map[string]Task {
	out := make(map[string]Task, len(list))
	for _, task := range list {
		out[strings.TrimSpace(task.TaskID)] = task
	}
	return out
}

func taskContentChanged(oldTask, newTask Task) bool {
	return oldTask.NormalizedStatus() != newTask.NormalizedStatus() ||
		oldTask.BestImageURL() != newTask.BestImageURL() ||
		oldTask.Progress != newTask.Progress ||
		strings.TrimSpace(oldTask.ErrorMessage) != strings.TrimSpace(newTask.ErrorMessage)
}
