package main

var sessionFactories = []SessionFactory{
	&FTPSessionFactory{},
	&SFTPSessionFactory{},
	// add more
}

func getSessionFactory(protocol string) SessionFactory {
	for _, factory := range sessionFactories {
		if factory.Accept(protocol) {
			return factory
		}
	}
	return nil
}
