package sample

func Broken( {
	return
